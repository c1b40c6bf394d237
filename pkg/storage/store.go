// Package storage persists the indicator state searches commit to: the
// list of added indicators, the active indicator pointer and a log of
// finished searches. It is backed by a single SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/db"
	"github.com/rubiojr/statsgrid/pkg/log"
)

const activeIndicatorKey = "active_indicator"

type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	conn, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := db.InitializeDatabase(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Store{db: conn, logger: log.ForService("storage")}, nil
}

// OpenWithoutMigrations opens the database as is. The migrate command uses
// it to report and apply migrations itself.
func OpenWithoutMigrations(ctx context.Context, path string) (*Store, error) {
	conn, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Store{db: conn, logger: log.ForService("storage")}, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA temp_store = memory",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	return conn, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for migration tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// AddIndicator stores ind unless an indicator with the same hash exists.
// It reports whether the indicator was new.
func (s *Store) AddIndicator(ctx context.Context, ind core.Indicator) (bool, error) {
	selections, err := json.Marshal(ind.Selections)
	if err != nil {
		return false, fmt.Errorf("marshaling selections: %w", err)
	}
	var series sql.NullString
	if ind.Series != nil {
		data, err := json.Marshal(ind.Series)
		if err != nil {
			return false, fmt.Errorf("marshaling series: %w", err)
		}
		series = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO indicators (hash, datasource, indicator, name, selections, series)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ind.Hash, ind.Datasource, ind.Indicator, ind.Name, string(selections), series)
	if err != nil {
		return false, fmt.Errorf("inserting indicator %s: %w", ind.Hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Debugf("added indicator %s", ind.Hash)
	}
	return n > 0, nil
}

func (s *Store) SetActiveIndicator(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, activeIndicatorKey, hash)
	if err != nil {
		return fmt.Errorf("setting active indicator: %w", err)
	}
	return nil
}

// ActiveIndicator returns the active indicator hash, or "" when unset.
func (s *Store) ActiveIndicator(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", activeIndicatorKey).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading active indicator: %w", err)
	}
	return hash, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndicator(row rowScanner) (core.Indicator, error) {
	var ind core.Indicator
	var selections string
	var series sql.NullString
	if err := row.Scan(&ind.Hash, &ind.Datasource, &ind.Indicator, &ind.Name, &selections, &series); err != nil {
		return ind, err
	}
	if err := json.Unmarshal([]byte(selections), &ind.Selections); err != nil {
		return ind, fmt.Errorf("decoding selections of %s: %w", ind.Hash, err)
	}
	if series.Valid {
		ind.Series = &core.SeriesSpec{}
		if err := json.Unmarshal([]byte(series.String), ind.Series); err != nil {
			return ind, fmt.Errorf("decoding series of %s: %w", ind.Hash, err)
		}
	}
	return ind, nil
}

// ListIndicators returns the stored indicators in the order they were added.
func (s *Store) ListIndicators(ctx context.Context) ([]core.Indicator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, datasource, indicator, name, selections, series
		FROM indicators ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("querying indicators: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var out []core.Indicator
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

// GetIndicator returns the indicator with the given hash, or nil.
func (s *Store) GetIndicator(ctx context.Context, hash string) (*core.Indicator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hash, datasource, indicator, name, selections, series
		FROM indicators WHERE hash = ?
	`, hash)
	ind, err := scanIndicator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ind, nil
}

// RemoveIndicator deletes an indicator and clears the active pointer when
// it pointed at it. It reports whether anything was removed.
func (s *Store) RemoveIndicator(ctx context.Context, hash string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				s.logger.Warnf("failed to rollback transaction: %v", err)
			}
		}
	}()

	res, err := tx.ExecContext(ctx, "DELETE FROM indicators WHERE hash = ?", hash)
	if err != nil {
		return false, fmt.Errorf("deleting indicator %s: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM state WHERE key = ? AND value = ?", activeIndicatorKey, hash); err != nil {
		return false, fmt.Errorf("clearing active indicator: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing: %w", err)
	}
	committed = true
	return n > 0, nil
}

// Clear removes every indicator and the active pointer.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM indicators"); err != nil {
		return fmt.Errorf("clearing indicators: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM state WHERE key = ?", activeIndicatorKey); err != nil {
		return fmt.Errorf("clearing active indicator: %w", err)
	}
	return nil
}

// RecordSearch appends a finished search to the search log.
func (s *Store) RecordSearch(ctx context.Context, rec core.SearchRecord) error {
	indicators, err := json.Marshal(rec.Indicators)
	if err != nil {
		return err
	}
	errs := rec.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO searches (id, datasource, indicators, probes, successful, added, active, errors, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Datasource, string(indicators), rec.Probes, rec.Successful, rec.Added, rec.Active, string(errorsJSON), finished.UTC())
	if err != nil {
		return fmt.Errorf("recording search %s: %w", rec.ID, err)
	}
	return nil
}

// ListSearches returns the most recent searches first.
func (s *Store) ListSearches(ctx context.Context, limit int) ([]core.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, datasource, indicators, probes, successful, added, active, errors, finished_at
		FROM searches ORDER BY finished_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying searches: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var out []core.SearchRecord
	for rows.Next() {
		var rec core.SearchRecord
		var indicators, errs string
		if err := rows.Scan(&rec.ID, &rec.Datasource, &indicators, &rec.Probes, &rec.Successful, &rec.Added, &rec.Active, &errs, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning search: %w", err)
		}
		if err := json.Unmarshal([]byte(indicators), &rec.Indicators); err != nil {
			return nil, fmt.Errorf("decoding indicators of search %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
			return nil, fmt.Errorf("decoding errors of search %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
