package search

import (
	"context"

	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/log"
)

// Prober checks whether a pinned query has retrievable data.
type Prober interface {
	IndicatorData(ctx context.Context, query core.DataQuery) (core.IndicatorData, error)
}

// ProbeResult is the classification of one expanded search.
type ProbeResult struct {
	Search  *RefinedSearch
	Success bool
	Err     error
}

// Validation collects the outcome of a batch.
type Validation struct {
	// Successful holds every successful entry except repeated successes of
	// the same series: a series is represented by its first success.
	Successful []*RefinedSearch
	Failed     []*RefinedSearch
	Results    []ProbeResult

	havingData map[string]bool
}

// HasData reports whether any entry of the indicator succeeded.
func (v *Validation) HasData(indicator string) bool {
	return v.havingData[indicator]
}

func (v *Validation) record(res ProbeResult) {
	v.Results = append(v.Results, res)
	search := res.Search
	if !res.Success {
		v.Failed = append(v.Failed, search)
		return
	}
	if search.Series == nil || !v.havingData[search.Indicator] {
		v.Successful = append(v.Successful, search)
	}
	v.havingData[search.Indicator] = true
}

// BatchValidator runs data availability probes one at a time, in submission
// order. Probes get no timeout of their own: a probe that never returns
// stalls the batch.
type BatchValidator struct {
	prober Prober
	logger *log.Logger
	// onResult, when set, observes every classified probe.
	onResult func(ProbeResult)
}

func NewBatchValidator(prober Prober) *BatchValidator {
	return &BatchValidator{
		prober: prober,
		logger: log.ForService("search"),
	}
}

// Validate probes every entry and returns the classified batch. Entries are
// consumed from a queue by a single worker; the next probe starts only after
// the previous one settled.
func (b *BatchValidator) Validate(ctx context.Context, entries []*RefinedSearch) *Validation {
	validation := &Validation{havingData: make(map[string]bool)}
	if len(entries) == 0 {
		return validation
	}

	queue := newProbeQueue(len(entries))
	for _, entry := range entries {
		queue.enqueue(entry)
	}
	queue.close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			entry, ok := queue.next()
			if !ok {
				return
			}
			res := b.probe(ctx, entry)
			validation.record(res)
			if b.onResult != nil {
				b.onResult(res)
			}
		}
	}()
	<-done

	return validation
}

func (b *BatchValidator) probe(ctx context.Context, entry *RefinedSearch) ProbeResult {
	data, err := b.prober.IndicatorData(ctx, entry.Query())
	if err != nil {
		b.logger.Debugf("probe %s failed: %v", entry.Fingerprint(), err)
		return ProbeResult{
			Search: entry,
			Err: &core.SearchError{
				Kind:      core.ProbeFailed,
				Indicator: entry.Indicator,
				Err:       err,
			},
		}
	}
	if !data.HasNumericValue() {
		b.logger.Debugf("probe %s returned no numeric values", entry.Fingerprint())
		return ProbeResult{Search: entry}
	}
	b.logger.Debugf("probe %s ok (%d regions)", entry.Fingerprint(), len(data))
	return ProbeResult{Search: entry, Success: true}
}

// probeQueue is a FIFO of pending probes.
type probeQueue struct {
	items chan *RefinedSearch
}

func newProbeQueue(capacity int) *probeQueue {
	return &probeQueue{items: make(chan *RefinedSearch, capacity)}
}

// enqueue never blocks when the queue was sized for the whole batch.
func (q *probeQueue) enqueue(item *RefinedSearch) {
	q.items <- item
}

func (q *probeQueue) close() {
	close(q.items)
}

func (q *probeQueue) next() (*RefinedSearch, bool) {
	item, ok := <-q.items
	return item, ok
}
