package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/message"
)

// ErrNoIndicators is returned when a search names no indicators.
var ErrNoIndicators = errors.New("no indicators selected")

// Backend provides indicator metadata and data for the search pipeline.
type Backend interface {
	Prober
	IndicatorMetadata(ctx context.Context, datasource, indicator string) (*core.IndicatorMetadata, error)
}

// Result is the outcome of one search invocation.
type Result struct {
	ID string `json:"id"`
	// Searches are the successful searches, one per series indicator and
	// one per multiselect value.
	Searches     []*RefinedSearch              `json:"searches"`
	Added        []core.Indicator              `json:"added"`
	Active       string                        `json:"active,omitempty"`
	Errors       []*core.SearchError           `json:"errors,omitempty"`
	Multiselect  map[string]*MultiselectStatus `json:"multiselect,omitempty"`
	Notification *Notification                 `json:"notification,omitempty"`
	Probes       int                           `json:"probes"`
}

// Record summarizes the result for the search log.
func (r *Result) Record(datasource string, indicators []string) core.SearchRecord {
	rec := core.SearchRecord{
		ID:         r.ID,
		Datasource: datasource,
		Indicators: append([]string(nil), indicators...),
		Probes:     r.Probes,
		Successful: len(r.Searches),
		Added:      len(r.Added),
		Active:     r.Active,
		FinishedAt: time.Now().UTC(),
	}
	for _, err := range r.Errors {
		rec.Errors = append(rec.Errors, err.Error())
	}
	return rec
}

// Service runs multi-indicator searches:
// refine per indicator, expand, validate sequentially, aggregate, commit.
type Service struct {
	backend  Backend
	store    IndicatorStore
	listener Listener
	printer  *message.Printer
	logger   *log.Logger
}

type Option func(*Service)

// WithListener adds a listener for search events.
func WithListener(l Listener) Option {
	return func(s *Service) {
		if s.listener == nil {
			s.listener = l
			return
		}
		if m, ok := s.listener.(multiListener); ok {
			s.listener = append(m, l)
			return
		}
		s.listener = multiListener{s.listener, l}
	}
}

// WithLanguage sets the notification language.
func WithLanguage(lang string) Option {
	return func(s *Service) {
		s.printer = NewPrinter(lang)
	}
}

func NewService(backend Backend, store IndicatorStore, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		store:   store,
		printer: NewPrinter("en"),
		logger:  log.ForService("search"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search starts a search in the background and returns its id. The search
// is detached from ctx cancellation and cannot be stopped; overlapping
// searches run independently and the last one to commit sets the active
// indicator.
func (s *Service) Search(ctx context.Context, common core.CommonSearchValues) string {
	id := uuid.NewString()
	snapshot := common.Clone()
	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := s.run(detached, id, snapshot); err != nil {
			s.logger.With("search", id).Errorf("search failed: %v", err)
		}
	}()
	return id
}

// Run executes a search synchronously.
func (s *Service) Run(ctx context.Context, common core.CommonSearchValues) (*Result, error) {
	return s.run(ctx, uuid.NewString(), common.Clone())
}

func (s *Service) run(ctx context.Context, id string, common core.CommonSearchValues) (*Result, error) {
	indicators := nonEmpty(common.Indicators)
	if len(indicators) == 0 {
		return nil, ErrNoIndicators
	}
	logger := s.logger.With("search", id)

	s.emitLoading(id, true)
	defer s.emitLoading(id, false)

	rep := newReport(indicators)
	refined := s.refineAll(ctx, common, indicators, rep)

	var entries []*RefinedSearch
	for _, r := range refined {
		if r == nil {
			continue
		}
		if r.Err != nil {
			rep.setError(r.Indicator, r.Err)
			continue
		}
		if r.Multiselect != nil {
			rep.statuses[r.Indicator] = r.Multiselect
		}
		entries = append(entries, Expand(r)...)
	}
	logger.Debugf("validating %d searches for %d indicators", len(entries), len(indicators))

	validation := NewBatchValidator(s.backend).Validate(ctx, entries)

	agg := NewAggregator(s.store, s.printer)
	agg.Reconcile(rep, validation)

	result := &Result{
		ID:          id,
		Searches:    validation.Successful,
		Errors:      rep.Errors(),
		Multiselect: rep.statuses,
		Probes:      len(validation.Results),
	}

	if n := agg.Notify(rep, len(validation.Successful)); n != nil {
		result.Notification = n
		s.emit(Event{Type: EventNotification, SearchID: id, Notification: n})
		logger.Warnf("%s: %v", n.Title, n.Lines)
	}

	added, active, err := agg.Commit(ctx, rep, validation.Successful)
	result.Added = added
	result.Active = active
	if active != "" {
		s.emit(Event{Type: EventActiveIndicator, SearchID: id, ActiveIndicator: active})
	}
	if err != nil {
		return result, fmt.Errorf("committing indicators: %w", err)
	}

	if rec, ok := s.store.(SearchRecorder); ok {
		if err := rec.RecordSearch(ctx, result.Record(common.Datasource, indicators)); err != nil {
			logger.Warnf("recording search: %v", err)
		}
	}

	logger.Infof("search done: %d probes, %d successful, %d new indicators", result.Probes, len(result.Searches), len(added))
	return result, nil
}

// refineAll fetches metadata for every indicator concurrently and refines
// the common values against it. The result keeps indicator order; failed
// indicators are recorded in rep and left nil.
func (s *Service) refineAll(ctx context.Context, common core.CommonSearchValues, indicators []string, rep *report) []*RefinedSearch {
	refined := make([]*RefinedSearch, len(indicators))
	failures := make([]*core.SearchError, len(indicators))
	names := make([]string, len(indicators))

	var g errgroup.Group
	for i, indicator := range indicators {
		g.Go(func() error {
			md, err := s.backend.IndicatorMetadata(ctx, common.Datasource, indicator)
			switch {
			case err != nil:
				failures[i] = &core.SearchError{Kind: core.MetadataFetchFailed, Indicator: indicator, Err: err}
				return nil
			case md == nil:
				failures[i] = core.NewSearchError(core.MetadataNotFound, indicator)
				return nil
			}
			if md.ID != indicator {
				cp := *md
				cp.ID = indicator
				md = &cp
			}
			names[i] = md.DisplayName()
			refined[i] = Refine(md, common)
			return nil
		})
	}
	_ = g.Wait()

	for i, indicator := range indicators {
		rep.names[indicator] = names[i]
		if failures[i] != nil {
			s.logger.Warnf("indicator %s: %v", indicator, failures[i])
			rep.setError(indicator, failures[i])
		}
	}
	return refined
}

func (s *Service) emitLoading(id string, loading bool) {
	s.emit(Event{Type: EventLoading, SearchID: id, Loading: &loading})
}

func (s *Service) emit(e Event) {
	if s.listener != nil {
		s.listener.SearchEvent(e)
	}
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
