package search

import (
	"testing"

	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unemployment() *core.IndicatorMetadata {
	return &core.IndicatorMetadata{
		ID:   "127",
		Name: "Unemployment rate",
		Selectors: []core.Selector{
			{ID: "sex", AllowedValues: allowed("male", "female", "total")},
			{ID: "year", AllowedValues: allowed(years(2010, 2015)...), Time: true},
		},
		Regionsets: []int{1851, 1850},
	}
}

func TestRefine(t *testing.T) {
	tests := []struct {
		name       string
		common     core.CommonSearchValues
		wantErr    *core.SearchError
		wantSel    core.Selections
		wantSeries *core.SeriesSpec
		wantStatus *MultiselectStatus
	}{
		{
			name: "all scalars allowed",
			common: core.CommonSearchValues{
				Selections: core.Selections{"sex": core.Scalar("total"), "year": core.Scalar("2012")},
				Regionset:  1851,
			},
			wantSel: core.Selections{"sex": core.Scalar("total"), "year": core.Scalar("2012")},
		},
		{
			name: "regionset fails before selectors",
			common: core.CommonSearchValues{
				Selections: core.Selections{"sex": core.Scalar("nope")},
				Regionset:  9,
			},
			wantErr: core.NewSearchError(core.RegionsetNotAllowed, "127"),
		},
		{
			name: "first offending scalar wins",
			common: core.CommonSearchValues{
				Selections: core.Selections{"sex": core.Scalar("nope"), "year": core.Scalar("1999")},
				Regionset:  1851,
			},
			wantErr: core.SelectorError("127", "sex"),
		},
		{
			name: "unsupported selector dropped silently",
			common: core.CommonSearchValues{
				Selections: core.Selections{"age": core.Scalar("0-17"), "sex": core.Scalar("male")},
				Regionset:  1850,
			},
			wantSel: core.Selections{"sex": core.Scalar("male")},
		},
		{
			name: "multiselect filtered to allowed values",
			common: core.CommonSearchValues{
				Selections: core.Selections{"sex": core.Multi("male", "other", "female")},
				Regionset:  1851,
			},
			wantSel:    core.Selections{"sex": core.Multi("male", "female")},
			wantStatus: &MultiselectStatus{Selector: "sex", Invalid: vals("other"), Requested: vals("male", "other", "female")},
		},
		{
			name: "multiselect without allowed values fails",
			common: core.CommonSearchValues{
				Selections: core.Selections{"sex": core.Multi("x", "y"), "year": core.Scalar("2010")},
				Regionset:  1851,
			},
			wantErr:    core.SelectorError("127", "sex"),
			wantSel:    core.Selections{"year": core.Scalar("2010")},
			wantStatus: &MultiselectStatus{Selector: "sex", Invalid: vals("x", "y"), Requested: vals("x", "y")},
		},
		{
			name: "series filtered",
			common: core.CommonSearchValues{
				Selections: core.Selections{"year": core.Scalar("2008")},
				Series:     &core.SeriesSpec{ID: "year", Values: vals("2008", "2009", "2010", "2011")},
				Regionset:  1851,
			},
			wantSel:    core.Selections{"year": core.Scalar("2008")},
			wantSeries: &core.SeriesSpec{ID: "year", Values: vals("2010", "2011")},
			wantStatus: &MultiselectStatus{Selector: "year", Invalid: vals("2008", "2009"), Requested: vals("2008", "2009", "2010", "2011")},
		},
		{
			name: "series with one survivor is downgraded",
			common: core.CommonSearchValues{
				Series:    &core.SeriesSpec{ID: "year", Values: vals("2009", "2010")},
				Regionset: 1851,
			},
			wantSel:    core.Selections{"year": core.Scalar("2010")},
			wantStatus: &MultiselectStatus{Selector: "year", Invalid: vals("2009"), Requested: vals("2009", "2010")},
		},
		{
			name: "second multiselect fails the indicator",
			common: core.CommonSearchValues{
				Selections: core.Selections{"sex": core.Multi("male", "female"), "year": core.Multi("2010", "2011")},
				Regionset:  1851,
			},
			wantErr:    core.SelectorError("127", "year"),
			wantSel:    core.Selections{"sex": core.Multi("male", "female"), "year": core.Multi("2010", "2011")},
			wantStatus: &MultiselectStatus{Selector: "year", Invalid: []core.Value{}, Requested: vals("2010", "2011")},
		},
		{
			name: "multiselect next to a series fails the indicator",
			common: core.CommonSearchValues{
				Selections: core.Selections{"sex": core.Multi("male", "female"), "year": core.Scalar("2010")},
				Series:     &core.SeriesSpec{ID: "year", Values: vals("2010", "2011", "2012")},
				Regionset:  1851,
			},
			wantErr:    core.SelectorError("127", "sex"),
			wantSel:    core.Selections{"sex": core.Multi("male", "female"), "year": core.Scalar("2010")},
			wantSeries: &core.SeriesSpec{ID: "year", Values: vals("2010", "2011", "2012")},
			wantStatus: &MultiselectStatus{Selector: "year", Invalid: []core.Value{}, Requested: vals("2010", "2011", "2012")},
		},
		{
			name: "unsupported multiselect does not count as an axis",
			common: core.CommonSearchValues{
				Selections: core.Selections{"age": core.Multi("0-17", "18-64"), "sex": core.Multi("male", "female")},
				Regionset:  1851,
			},
			wantSel:    core.Selections{"sex": core.Multi("male", "female")},
			wantStatus: &MultiselectStatus{Selector: "sex", Invalid: []core.Value{}, Requested: vals("male", "female")},
		},
		{
			name: "series on unsupported selector is dropped",
			common: core.CommonSearchValues{
				Selections: core.Selections{"quarter": core.Scalar("q1")},
				Series:     &core.SeriesSpec{ID: "quarter", Values: vals("q1", "q2")},
				Regionset:  1851,
			},
			wantSel: core.Selections{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Refine(unemployment(), tt.common)
			assert.Equal(t, "127", got.Indicator)
			assert.Equal(t, "Unemployment rate", got.IndicatorName)
			if tt.wantErr != nil {
				require.NotNil(t, got.Err)
				assert.Equal(t, tt.wantErr.Kind, got.Err.Kind)
				assert.Equal(t, tt.wantErr.Selector, got.Err.Selector)
				if tt.wantErr.Kind == core.RegionsetNotAllowed {
					return
				}
			} else {
				assert.Nil(t, got.Err)
			}
			assert.Equal(t, tt.wantSel, got.Selections)
			assert.Equal(t, tt.wantSeries, got.Series)
			assert.Equal(t, tt.wantStatus, got.Multiselect)
		})
	}
}

func TestRefineDoesNotMutateCommon(t *testing.T) {
	common := core.CommonSearchValues{
		Datasource: "sotkanet",
		Indicators: []string{"127"},
		Selections: core.Selections{"sex": core.Multi("male", "other"), "age": core.Scalar("all")},
		Series:     &core.SeriesSpec{ID: "year", Values: vals("2001", "2010", "2011")},
		Regionset:  1851,
	}
	before := common.Clone()

	got := Refine(unemployment(), common)
	got.Selections["sex"].Values[0] = "changed"
	got.Series.Values[0] = "changed"

	assert.Equal(t, before, common)
}

func TestRefineSubsetProperty(t *testing.T) {
	requested := vals("2015", "2003", "2011", "2020", "2010")
	got := Refine(unemployment(), core.CommonSearchValues{
		Selections: core.Selections{"year": core.Multi(requested...)},
		Regionset:  1851,
	})
	require.Nil(t, got.Err)

	filtered := got.Selections["year"].Values
	for _, v := range filtered {
		assert.Contains(t, requested, v)
	}
	// invalid = requested - filtered, requested order kept
	var diff []core.Value
	for _, v := range requested {
		if !core.ContainsValue(filtered, v) {
			diff = append(diff, v)
		}
	}
	assert.Equal(t, diff, got.Multiselect.Invalid)
	assert.Equal(t, requested, got.Multiselect.Requested)
}

func TestDowngradeSeriesIdempotent(t *testing.T) {
	r := &RefinedSearch{
		Selections: core.Selections{"year": core.Scalar("2010")},
		Series:     &core.SeriesSpec{ID: "year", Values: vals("2012")},
	}
	DowngradeSeries(r)
	first := r.clone()
	DowngradeSeries(r)

	assert.Nil(t, r.Series)
	assert.Equal(t, core.Scalar("2012"), r.Selections["year"])
	assert.Equal(t, first, r)

	kept := &RefinedSearch{Series: &core.SeriesSpec{ID: "year", Values: vals("2012", "2013")}}
	DowngradeSeries(kept)
	require.NotNil(t, kept.Series)
	assert.Len(t, kept.Series.Values, 2)
}
