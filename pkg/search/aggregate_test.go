package search

import (
	"context"
	"testing"

	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesEntries(indicator string, values ...string) []*RefinedSearch {
	return Expand(&RefinedSearch{
		Datasource: "D",
		Indicator:  indicator,
		Selections: core.Selections{"year": core.Scalar(core.Value(values[0]))},
		Series:     &core.SeriesSpec{ID: "year", Values: vals(values...)},
		Multiselect: &MultiselectStatus{
			Selector:  "year",
			Invalid:   []core.Value{},
			Requested: vals(values...),
		},
	})
}

func validationOf(entries []*RefinedSearch, fails func(*RefinedSearch) bool) *Validation {
	v := &Validation{havingData: make(map[string]bool)}
	for _, e := range entries {
		v.record(ProbeResult{Search: e, Success: !fails(e)})
	}
	return v
}

func TestReconcileSeriesFailures(t *testing.T) {
	entries := seriesEntries("A", "2012", "2013", "2014", "2015")
	rep := newReport([]string{"A"})
	rep.statuses["A"] = entries[0].Multiselect

	v := validationOf(entries, func(e *RefinedSearch) bool {
		y := e.Selections["year"].Value
		return y == "2012" || y == "2014"
	})
	NewAggregator(nil, NewPrinter("en")).Reconcile(rep, v)

	require.Len(t, v.Successful, 1)
	survivor := v.Successful[0]
	require.NotNil(t, survivor.Series)
	assert.Equal(t, vals("2013", "2015"), survivor.Series.Values)
	assert.Equal(t, vals("2012", "2014"), rep.statuses["A"].Invalid)
	assert.Empty(t, rep.errors)
}

func TestReconcileDowngradesShortSeries(t *testing.T) {
	entries := seriesEntries("A", "2012", "2013", "2014")
	rep := newReport([]string{"A"})
	rep.statuses["A"] = entries[0].Multiselect

	v := validationOf(entries, func(e *RefinedSearch) bool {
		return e.Selections["year"].Value != "2013"
	})
	NewAggregator(nil, NewPrinter("en")).Reconcile(rep, v)

	require.Len(t, v.Successful, 1)
	assert.Nil(t, v.Successful[0].Series)
	assert.Equal(t, core.Scalar("2013"), v.Successful[0].Selections["year"])
}

func TestReconcileDatasetEmptyAndSkips(t *testing.T) {
	entries := append(seriesEntries("A", "2012", "2013"), seriesEntries("B", "2012", "2013")...)
	rep := newReport([]string{"A", "B"})
	rep.setError("B", core.NewSearchError(core.MetadataFetchFailed, "B"))

	v := validationOf(entries, func(*RefinedSearch) bool { return true })
	NewAggregator(nil, NewPrinter("en")).Reconcile(rep, v)

	require.Contains(t, rep.errors, "A")
	assert.Equal(t, core.DatasetEmpty, rep.errors["A"].Kind)
	assert.Equal(t, core.MetadataFetchFailed, rep.errors["B"].Kind)
}

func TestNotify(t *testing.T) {
	rep := newReport([]string{"A", "B", "C"})
	rep.names["A"] = "Alpha"
	rep.names["B"] = "Beta"
	rep.setError("A", core.NewSearchError(core.DatasetEmpty, "A"))
	rep.statuses["A"] = &MultiselectStatus{Selector: "year", Invalid: vals("2010"), Requested: vals("2010")}
	rep.statuses["B"] = &MultiselectStatus{Selector: "year", Invalid: vals("2010", "2011", "2012"), Requested: vals(years(2010, 2015)...)}
	rep.statuses["C"] = &MultiselectStatus{Selector: "year", Invalid: []core.Value{}, Requested: vals("2010")}

	agg := NewAggregator(nil, NewPrinter("en"))

	n := agg.Notify(rep, 2)
	require.NotNil(t, n)
	assert.Equal(t, "Only partial data for 2 indicators", n.Title)
	assert.Equal(t, []string{"Alpha", "Beta (2010 - 2012)"}, n.Lines)
	assert.False(t, n.NoData)

	n = agg.Notify(rep, 0)
	assert.Equal(t, "No data for 2 indicators", n.Title)
	assert.True(t, n.NoData)

	// an indicator is never both a hard error and a partial success
	errs := rep.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, core.DatasetEmpty, errs[0].Kind)
	assert.Equal(t, "A", errs[0].Indicator)
	assert.Equal(t, core.PartialMultiselect, errs[1].Kind)
	assert.Equal(t, "B", errs[1].Indicator)

	assert.Nil(t, agg.Notify(newReport([]string{"C"}), 1))
}

func TestNotifyFinnish(t *testing.T) {
	rep := newReport([]string{"A"})
	rep.setError("A", core.NewSearchError(core.DatasetEmpty, "A"))
	n := NewAggregator(nil, NewPrinter("fi-FI")).Notify(rep, 0)
	require.NotNil(t, n)
	assert.Equal(t, "Ei dataa 1 indikaattorille", n.Title)
}

func TestCommit(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator(store, NewPrinter("en"))
	rep := newReport([]string{"A", "B"})
	rep.names["A"] = "Alpha"

	successful := []*RefinedSearch{
		{Datasource: "D", Indicator: "A", Selections: core.Selections{"year": core.Scalar("2010")}},
		{Datasource: "D", Indicator: "B", Selections: core.Selections{"year": core.Scalar("2010")}},
	}
	added, active, err := agg.Commit(context.Background(), rep, successful)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "Alpha", added[0].Name)
	assert.Equal(t, "B", added[1].Name)
	assert.Equal(t, successful[1].Fingerprint(), active)
	assert.Equal(t, active, store.active)

	// nothing new: the last successful search becomes active anyway
	added, active, err = agg.Commit(context.Background(), rep, successful[:1])
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, successful[0].Fingerprint(), active)
	assert.Equal(t, 2, store.activeSets)
	assert.Len(t, store.order, 2)
}

func TestCommitCollectsStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.failAdd = true
	agg := NewAggregator(store, NewPrinter("en"))
	successful := []*RefinedSearch{{Datasource: "D", Indicator: "A", Selections: core.Selections{}}}

	added, _, err := agg.Commit(context.Background(), newReport([]string{"A"}), successful)
	assert.Error(t, err)
	assert.Empty(t, added)
}
