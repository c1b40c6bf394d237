package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestSelectorAllowsRawAndObjectValues(t *testing.T) {
	var sel Selector
	err := json.Unmarshal([]byte(`{"id":"sex","allowedValues":["total",{"id":"male","name":"Male"}]}`), &sel)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !sel.Allows("total") || !sel.Allows("male") {
		t.Errorf("expected raw and object values to be allowed: %+v", sel)
	}
	if sel.Allows("female") {
		t.Error("female should not be allowed")
	}
	if sel.AllowedValues[1].Title() != "Male" || sel.AllowedValues[0].Title() != "total" {
		t.Errorf("unexpected titles: %+v", sel.AllowedValues)
	}
}

func TestSelectionJSON(t *testing.T) {
	var sels Selections
	if err := json.Unmarshal([]byte(`{"year":[2010,2011],"sex":"total"}`), &sels); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !sels["year"].IsMulti() || len(sels["year"].Values) != 2 {
		t.Errorf("year should be multiselect: %+v", sels["year"])
	}
	if sels["sex"].IsMulti() || sels["sex"].Value != "total" {
		t.Errorf("sex should be scalar: %+v", sels["sex"])
	}
}

func TestCommonSearchValuesCloneIsDeep(t *testing.T) {
	orig := CommonSearchValues{
		Datasource: "D",
		Indicators: []string{"A"},
		Selections: Selections{"year": Multi("2010", "2011")},
		Series:     &SeriesSpec{ID: "year", Values: []Value{"2010", "2011"}},
	}
	cp := orig.Clone()
	cp.Indicators[0] = "B"
	cp.Selections["year"].Values[0] = "1999"
	cp.Series.Values[0] = "1999"

	if orig.Indicators[0] != "A" || orig.Selections["year"].Values[0] != "2010" || orig.Series.Values[0] != "2010" {
		t.Errorf("clone shares state with original: %+v", orig)
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := Selections{"year": Scalar("2015"), "sex": Scalar("total")}
	b := Selections{"sex": Scalar("total"), "year": Scalar("2015")}
	if Fingerprint("D", "A", a, nil) != Fingerprint("D", "A", b, nil) {
		t.Error("fingerprint depends on selection order")
	}

	series := &SeriesSpec{ID: "year", Values: []Value{"2014", "2015"}}
	if Fingerprint("D", "A", a, nil) == Fingerprint("D", "A", a, series) {
		t.Error("series must change the fingerprint")
	}
	if Fingerprint("D", "A", a, nil) == Fingerprint("D", "B", a, nil) {
		t.Error("indicator must change the fingerprint")
	}
}

func TestFingerprintDelimitersInIDs(t *testing.T) {
	sel := Selections{"year": Scalar("2015")}
	if Fingerprint("a_b", "c", sel, nil) == Fingerprint("a", "b_c", sel, nil) {
		t.Error("underscore in ids must not make fingerprints collide")
	}

	a := Selections{"x": Scalar("1:y=2")}
	b := Selections{"x": Scalar("1"), "y": Scalar("2")}
	if Fingerprint("D", "A", a, nil) == Fingerprint("D", "A", b, nil) {
		t.Error("delimiters in values must not make fingerprints collide")
	}
	if Fingerprint("D", "A", Selections{"x": Multi("a", "b")}, nil) == Fingerprint("D", "A", Selections{"x": Scalar("[a,b]")}, nil) {
		t.Error("a multiselect must not collide with a scalar spelling out the list")
	}

	if got := Fingerprint("stats", "127", sel, nil); got != "stats_127_year=2015" {
		t.Errorf("plain ids must keep their fingerprint, got %q", got)
	}
}

func TestHasNumericValue(t *testing.T) {
	v := 1.5
	nan := math.NaN()
	tests := []struct {
		data IndicatorData
		want bool
	}{
		{nil, false},
		{IndicatorData{}, false},
		{IndicatorData{"1": nil}, false},
		{IndicatorData{"1": &nan}, false},
		{IndicatorData{"1": nil, "2": &v}, true},
	}
	for i, tt := range tests {
		if got := tt.data.HasNumericValue(); got != tt.want {
			t.Errorf("case %d: got %v, want %v", i, got, tt.want)
		}
	}
}

func TestSearchErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", SelectorError("A", "year"))
	if !errors.Is(err, ErrSelectorNotAllowed) {
		t.Error("expected kind sentinel to match")
	}
	if !errors.Is(err, &SearchError{Kind: SelectorNotAllowed, Selector: "year"}) {
		t.Error("expected selector specific match")
	}
	if errors.Is(err, &SearchError{Kind: SelectorNotAllowed, Selector: "sex"}) {
		t.Error("different selector must not match")
	}
	if errors.Is(err, ErrDatasetEmpty) {
		t.Error("different kind must not match")
	}

	cause := errors.New("boom")
	fetch := &SearchError{Kind: MetadataFetchFailed, Indicator: "A", Err: cause}
	if !errors.Is(fetch, cause) {
		t.Error("expected Unwrap to expose cause")
	}
	if !fetch.Terminal() || (&SearchError{Kind: PartialMultiselect}).Terminal() {
		t.Error("unexpected Terminal result")
	}
}
