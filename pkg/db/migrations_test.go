package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := GetEmbeddedMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "initial" {
		t.Errorf("unexpected first migration %d %s", migrations[0].Version, migrations[0].Name)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migrations not sorted at %d", i)
		}
	}
}

func TestInitializeDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := InitializeDatabase(ctx, db); err != nil {
		t.Fatalf("InitializeDatabase: %v", err)
	}
	// second run is a no-op
	if err := InitializeDatabase(ctx, db); err != nil {
		t.Fatalf("InitializeDatabase again: %v", err)
	}

	for _, table := range []string{"indicators", "state", "searches"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	status, err := NewMigrationManager(db).GetMigrationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(status.Pending) != 0 || len(status.Applied) != len(status.Available) {
		t.Errorf("unexpected status: %d applied, %d pending", len(status.Applied), len(status.Pending))
	}
}

func TestMigrationsFromPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := map[string]string{
		"002_second.sql": "CREATE TABLE second (id INTEGER);",
		"001_first.sql":  "CREATE TABLE first (id INTEGER);",
		"README.md":      "ignored",
		"bad.sql":        "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	db := openTestDB(t)
	m := NewMigrationManagerFromPath(db, dir)
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		t.Fatal(err)
	}
	pending, err := m.GetPendingMigrations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].Name != "first" || pending[1].Name != "second" {
		t.Fatalf("unexpected pending migrations %+v", pending)
	}

	if err := m.ApplyPendingMigrations(ctx); err != nil {
		t.Fatal(err)
	}
	pending, _ = m.GetPendingMigrations(ctx)
	if len(pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(pending))
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_broken.sql"), []byte("CREATE TABLE ok (id INTEGER); NOT SQL;"), 0644); err != nil {
		t.Fatal(err)
	}
	db := openTestDB(t)
	m := NewMigrationManagerFromPath(db, dir)
	if err := m.ApplyPendingMigrations(ctx); err == nil {
		t.Fatal("expected migration error")
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 0 {
		t.Errorf("failed migration recorded as applied")
	}
}
