package search

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rubiojr/statsgrid/pkg/core"
)

func allowed(ids ...string) []core.AllowedValue {
	out := make([]core.AllowedValue, len(ids))
	for i, id := range ids {
		out[i] = core.AllowedValue{ID: core.Value(id)}
	}
	return out
}

func years(from, to int) []string {
	var out []string
	for y := from; y <= to; y++ {
		out = append(out, strconv.Itoa(y))
	}
	return out
}

func vals(ids ...string) []core.Value {
	out := make([]core.Value, len(ids))
	for i, id := range ids {
		out[i] = core.Value(id)
	}
	return out
}

func float(v float64) *float64 { return &v }

// fakeBackend serves fixed metadata and answers probes through hasData.
type fakeBackend struct {
	mu          sync.Mutex
	metadata    map[string]*core.IndicatorMetadata
	metadataErr map[string]error
	hasData     func(q core.DataQuery) bool
	probeErr    func(q core.DataQuery) error
	delay       time.Duration

	probes    []core.DataQuery
	inFlight  int
	maxFlight int
}

func newFakeBackend(mds ...*core.IndicatorMetadata) *fakeBackend {
	b := &fakeBackend{
		metadata:    make(map[string]*core.IndicatorMetadata),
		metadataErr: make(map[string]error),
		hasData:     func(core.DataQuery) bool { return true },
	}
	for _, md := range mds {
		b.metadata[md.ID] = md
	}
	return b
}

func (b *fakeBackend) IndicatorMetadata(ctx context.Context, datasource, indicator string) (*core.IndicatorMetadata, error) {
	if err := b.metadataErr[indicator]; err != nil {
		return nil, err
	}
	return b.metadata[indicator], nil
}

func (b *fakeBackend) IndicatorData(ctx context.Context, q core.DataQuery) (core.IndicatorData, error) {
	b.mu.Lock()
	b.probes = append(b.probes, q)
	b.inFlight++
	if b.inFlight > b.maxFlight {
		b.maxFlight = b.inFlight
	}
	b.mu.Unlock()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()

	if b.probeErr != nil {
		if err := b.probeErr(q); err != nil {
			return nil, err
		}
	}
	if !b.hasData(q) {
		return core.IndicatorData{"1": nil, "2": nil}, nil
	}
	return core.IndicatorData{"1": float(1.5), "2": nil}, nil
}

func (b *fakeBackend) probed() []core.DataQuery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.DataQuery(nil), b.probes...)
}

// fakeStore is an in-memory IndicatorStore.
type fakeStore struct {
	mu         sync.Mutex
	indicators map[string]core.Indicator
	order      []string
	active     string
	activeSets int
	failAdd    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{indicators: make(map[string]core.Indicator)}
}

func (s *fakeStore) AddIndicator(ctx context.Context, ind core.Indicator) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd {
		return false, errors.New("store unavailable")
	}
	if _, ok := s.indicators[ind.Hash]; ok {
		return false, nil
	}
	s.indicators[ind.Hash] = ind
	s.order = append(s.order, ind.Hash)
	return true, nil
}

func (s *fakeStore) SetActiveIndicator(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = hash
	s.activeSets++
	return nil
}

func (s *fakeStore) byIndicator(id string) []core.Indicator {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Indicator
	for _, hash := range s.order {
		if ind := s.indicators[hash]; ind.Indicator == id {
			out = append(out, ind)
		}
	}
	return out
}

// recordingListener keeps every event it receives.
type recordingListener struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{done: make(chan struct{})}
}

func (l *recordingListener) SearchEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if e.Type == EventLoading && e.Loading != nil && !*e.Loading {
		close(l.done)
	}
}

func (l *recordingListener) ofType(t string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeCatalog backs the builder tests.
type fakeCatalog struct {
	datasources map[string]core.DatasourceInfo
	indicators  map[string][]core.IndicatorInfo
	metadata    map[string]*core.IndicatorMetadata
}

func (c *fakeCatalog) Datasource(name string) (core.DatasourceInfo, bool) {
	info, ok := c.datasources[name]
	return info, ok
}

func (c *fakeCatalog) ListIndicators(ctx context.Context, datasource string) ([]core.IndicatorInfo, error) {
	list, ok := c.indicators[datasource]
	if !ok {
		return nil, errors.New("unreachable datasource")
	}
	return list, nil
}

func (c *fakeCatalog) IndicatorMetadata(ctx context.Context, datasource, indicator string) (*core.IndicatorMetadata, error) {
	return c.metadata[indicator], nil
}

func (c *fakeCatalog) UnsupportedDatasources(ctx context.Context, regionsets []int) []string {
	var out []string
	for name, info := range c.datasources {
		if !supportsAny(info.Regionsets, regionsets) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
