package search

import (
	"github.com/rubiojr/statsgrid/pkg/core"
)

// Expand splits a refined search into single value searches, one per value
// of its series, or of its multiselect axis when there is no series. The
// series marker is kept on every entry so results can be folded back into
// one series indicator. Searches carrying an error expand to nothing.
func Expand(r *RefinedSearch) []*RefinedSearch {
	if r.Err != nil {
		return nil
	}

	axis, values := expansionAxis(r)
	if axis == "" {
		return []*RefinedSearch{r.clone()}
	}

	out := make([]*RefinedSearch, 0, len(values))
	for _, v := range values {
		entry := r.clone()
		entry.Selections[axis] = core.Scalar(v)
		out = append(out, entry)
	}
	return out
}

// expansionAxis picks the series axis, or the multiselect selector. Refine
// leaves at most one of them on a search without errors.
func expansionAxis(r *RefinedSearch) (string, []core.Value) {
	if r.Series != nil {
		return r.Series.ID, r.Series.Values
	}
	for _, key := range r.Selections.Keys() {
		if sel := r.Selections[key]; sel.IsMulti() {
			return key, sel.Values
		}
	}
	return "", nil
}
