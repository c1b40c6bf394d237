package search

import (
	"sort"

	"github.com/rubiojr/statsgrid/pkg/core"
)

// MultiselectStatus tracks which values of a multiselect or series axis were
// rejected, by metadata during refinement or by a failed probe later on.
type MultiselectStatus struct {
	Selector  string       `json:"selector"`
	Invalid   []core.Value `json:"invalid"`
	Requested []core.Value `json:"requested"`
}

func (m *MultiselectStatus) clone() *MultiselectStatus {
	if m == nil {
		return nil
	}
	return &MultiselectStatus{
		Selector:  m.Selector,
		Invalid:   core.CloneValues(m.Invalid),
		Requested: core.CloneValues(m.Requested),
	}
}

// RefinedSearch is the common search narrowed to one indicator.
type RefinedSearch struct {
	Datasource    string            `json:"datasource"`
	Indicator     string            `json:"indicator"`
	IndicatorName string            `json:"indicator_name"`
	Selections    core.Selections   `json:"selections"`
	Series        *core.SeriesSpec  `json:"series,omitempty"`
	Regionset     int               `json:"regionset"`
	Err           *core.SearchError `json:"error,omitempty"`

	Multiselect *MultiselectStatus `json:"multiselect,omitempty"`
}

// Query returns the data request for this search.
func (r *RefinedSearch) Query() core.DataQuery {
	return core.DataQuery{
		Datasource: r.Datasource,
		Indicator:  r.Indicator,
		Selections: r.Selections,
		Series:     r.Series,
		Regionset:  r.Regionset,
	}
}

// Fingerprint identifies the indicator this search would commit.
func (r *RefinedSearch) Fingerprint() string {
	return core.Fingerprint(r.Datasource, r.Indicator, r.Selections, r.Series)
}

func (r *RefinedSearch) clone() *RefinedSearch {
	cp := *r
	cp.Selections = r.Selections.Clone()
	cp.Series = r.Series.Clone()
	cp.Multiselect = r.Multiselect.clone()
	return &cp
}

// Refine validates the common search values against one indicator's
// metadata. The returned search never shares state with common.
//
// Unsupported selectors are dropped silently. A scalar value outside the
// allowed values fails the indicator; the first offending selector (in key
// order) wins. Multiselect and series values are filtered down to the
// allowed subset and fail the indicator only when nothing survives.
func Refine(metadata *core.IndicatorMetadata, common core.CommonSearchValues) *RefinedSearch {
	values := common.Clone()
	refined := &RefinedSearch{
		Datasource:    values.Datasource,
		Indicator:     metadata.ID,
		IndicatorName: metadata.DisplayName(),
		Selections:    values.Selections,
		Series:        values.Series,
		Regionset:     values.Regionset,
	}
	if refined.Selections == nil {
		refined.Selections = core.Selections{}
	}

	if !metadata.SupportsRegionset(values.Regionset) {
		refined.Err = core.NewSearchError(core.RegionsetNotAllowed, metadata.ID)
		return refined
	}

	for _, key := range refinementKeys(refined) {
		selector, ok := metadata.Selector(key)
		if !ok {
			delete(refined.Selections, key)
			if refined.Series != nil && refined.Series.ID == key {
				refined.Series = nil
			}
			continue
		}

		isSeries := refined.Series != nil && refined.Series.ID == key
		selection := refined.Selections[key]

		if !isSeries && !selection.IsMulti() {
			if !selector.Allows(selection.Value) {
				refined.Err = core.SelectorError(metadata.ID, key)
				break
			}
			continue
		}

		requested := selection.Values
		if isSeries {
			requested = refined.Series.Values
		}
		var allowed, notAllowed []core.Value
		for _, v := range requested {
			if selector.Allows(v) {
				allowed = append(allowed, v)
			} else {
				notAllowed = append(notAllowed, v)
			}
		}
		if notAllowed == nil {
			notAllowed = []core.Value{}
		}

		// The series axis owns the status when both kinds are present.
		if isSeries || refined.Series == nil || refined.Multiselect == nil {
			refined.Multiselect = &MultiselectStatus{
				Selector:  key,
				Invalid:   notAllowed,
				Requested: core.CloneValues(requested),
			}
		}

		switch {
		case len(notAllowed) == 0:
		case len(allowed) == 0:
			delete(refined.Selections, key)
			if isSeries {
				refined.Series = nil
			}
			refined.Err = core.SelectorError(metadata.ID, key)
		case isSeries:
			refined.Series.Values = allowed
		default:
			refined.Selections[key] = core.Multi(allowed...)
		}
		if refined.Err != nil {
			break
		}
	}

	if refined.Err == nil {
		DowngradeSeries(refined)
		if key := extraAxis(refined); key != "" {
			refined.Err = core.SelectorError(metadata.ID, key)
		}
	}
	return refined
}

// extraAxis returns the first multiselect key, in key order, that would add
// a second expansion axis. The series counts as the first axis.
func extraAxis(r *RefinedSearch) string {
	found := r.Series != nil
	for _, key := range r.Selections.Keys() {
		if r.Series != nil && key == r.Series.ID {
			continue
		}
		if !r.Selections[key].IsMulti() {
			continue
		}
		if found {
			return key
		}
		found = true
	}
	return ""
}

// refinementKeys returns the selection keys plus the series axis, sorted.
func refinementKeys(r *RefinedSearch) []string {
	keys := r.Selections.Keys()
	if r.Series != nil {
		if _, ok := r.Selections[r.Series.ID]; !ok {
			keys = append(keys, r.Series.ID)
			sort.Strings(keys)
		}
	}
	return keys
}

// DowngradeSeries turns a series with fewer than two values into a plain
// search pinned to the remaining value. It is idempotent.
func DowngradeSeries(r *RefinedSearch) {
	if r.Series == nil || len(r.Series.Values) >= 2 {
		return
	}
	if len(r.Series.Values) == 1 {
		if r.Selections == nil {
			r.Selections = core.Selections{}
		}
		r.Selections[r.Series.ID] = core.Scalar(r.Series.Values[0])
	}
	r.Series = nil
}
