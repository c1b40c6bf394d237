package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubiojr/statsgrid/pkg/core"
	"golang.org/x/text/message"
)

// Notification is the single user facing summary of a search.
type Notification struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
	// NoData is set when not a single search succeeded.
	NoData bool `json:"no_data"`
}

// IndicatorStore is the persistent indicator state searches commit to.
type IndicatorStore interface {
	// AddIndicator stores the indicator and reports whether it was new.
	AddIndicator(ctx context.Context, indicator core.Indicator) (bool, error)
	SetActiveIndicator(ctx context.Context, hash string) error
}

// SearchRecorder is implemented by stores that keep a log of finished
// searches.
type SearchRecorder interface {
	RecordSearch(ctx context.Context, rec core.SearchRecord) error
}

// report holds the per-indicator bookkeeping of one search invocation, in
// the order the indicators were requested.
type report struct {
	order    []string
	names    map[string]string
	errors   map[string]*core.SearchError
	statuses map[string]*MultiselectStatus
}

func newReport(indicators []string) *report {
	return &report{
		order:    indicators,
		names:    make(map[string]string),
		errors:   make(map[string]*core.SearchError),
		statuses: make(map[string]*MultiselectStatus),
	}
}

func (r *report) name(indicator string) string {
	if name, ok := r.names[indicator]; ok && name != "" {
		return name
	}
	return indicator
}

func (r *report) setError(indicator string, err *core.SearchError) {
	if _, exists := r.errors[indicator]; exists {
		return
	}
	r.errors[indicator] = err
}

// Errors returns the terminal errors followed by the partial multiselect
// errors, in indicator order.
func (r *report) Errors() []*core.SearchError {
	var out []*core.SearchError
	for _, ind := range r.order {
		if err, ok := r.errors[ind]; ok {
			out = append(out, err)
		}
	}
	for _, ind := range r.order {
		status, ok := r.statuses[ind]
		if !ok || len(status.Invalid) == 0 {
			continue
		}
		if _, failed := r.errors[ind]; failed {
			continue
		}
		out = append(out, &core.SearchError{Kind: core.PartialMultiselect, Indicator: ind, Selector: status.Selector})
	}
	return out
}

// Aggregator folds probe failures back into the search state, builds the
// notification and commits successful searches.
type Aggregator struct {
	store   IndicatorStore
	printer *message.Printer
}

func NewAggregator(store IndicatorStore, printer *message.Printer) *Aggregator {
	return &Aggregator{store: store, printer: printer}
}

// Reconcile processes failed entries in order. Indicators with an earlier
// error are skipped, indicators without a single success become
// DatasetEmpty, and partial failures are recorded as invalid values and
// removed from the surviving series entry.
func (a *Aggregator) Reconcile(rep *report, v *Validation) {
	for _, failed := range v.Failed {
		if _, exists := rep.errors[failed.Indicator]; exists {
			continue
		}
		if !v.HasData(failed.Indicator) {
			rep.setError(failed.Indicator, core.NewSearchError(core.DatasetEmpty, failed.Indicator))
			continue
		}

		status := rep.statuses[failed.Indicator]
		if status == nil {
			continue
		}
		invalid := failed.Selections[status.Selector].Value
		status.Invalid = append(status.Invalid, invalid)

		if failed.Series == nil {
			continue
		}
		survivor := findSeriesSearch(v.Successful, failed.Indicator)
		if survivor == nil || survivor.Series == nil {
			continue
		}
		survivor.Series.Values = removeValue(survivor.Series.Values, invalid)
		DowngradeSeries(survivor)
	}
}

func findSeriesSearch(successful []*RefinedSearch, indicator string) *RefinedSearch {
	for _, s := range successful {
		if s.Indicator == indicator {
			return s
		}
	}
	return nil
}

func removeValue(values []core.Value, v core.Value) []core.Value {
	for i, cur := range values {
		if cur == v {
			return append(values[:i:i], values[i+1:]...)
		}
	}
	return values
}

// Notify builds the consolidated notification, or nil when there is
// nothing to report.
func (a *Aggregator) Notify(rep *report, successful int) *Notification {
	var lines []string
	for _, ind := range rep.order {
		if _, ok := rep.errors[ind]; ok {
			lines = append(lines, rep.name(ind))
		}
	}
	for _, ind := range rep.order {
		if _, failed := rep.errors[ind]; failed {
			continue
		}
		status, ok := rep.statuses[ind]
		if !ok || len(status.Invalid) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", rep.name(ind), FormatInvalidValues(status.Invalid, status.Requested)))
	}
	if len(lines) == 0 {
		return nil
	}

	n := &Notification{Lines: lines, NoData: successful == 0}
	if n.NoData {
		n.Title = a.printer.Sprintf(msgNoData, len(lines))
	} else {
		n.Title = a.printer.Sprintf(msgPartialData, len(lines))
	}
	return n
}

// Commit stores every successful search. The last newly added indicator
// becomes active; when nothing was new the last successful search does.
// Store failures are collected and do not stop the remaining commits.
func (a *Aggregator) Commit(ctx context.Context, rep *report, successful []*RefinedSearch) ([]core.Indicator, string, error) {
	if a.store == nil || len(successful) == 0 {
		return nil, "", nil
	}

	var added []core.Indicator
	var errs []error
	var latest string
	for _, s := range successful {
		indicator := core.NewIndicator(s.Datasource, s.Indicator, s.Selections, s.Series)
		indicator.Name = rep.name(s.Indicator)
		isNew, err := a.store.AddIndicator(ctx, indicator)
		if err != nil {
			errs = append(errs, fmt.Errorf("adding indicator %s: %w", indicator.Hash, err))
			continue
		}
		if isNew {
			added = append(added, indicator)
			latest = indicator.Hash
		}
	}
	if latest == "" {
		latest = successful[len(successful)-1].Fingerprint()
	}
	if err := a.store.SetActiveIndicator(ctx, latest); err != nil {
		errs = append(errs, fmt.Errorf("setting active indicator: %w", err))
		latest = ""
	}
	return added, latest, errors.Join(errs...)
}
