package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// AllowedValue is one entry of a selector's allowed values. Providers may
// describe values as bare ids or as {id, name} pairs; bare ids leave Name empty.
type AllowedValue struct {
	ID   Value  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Title returns the display name of the value, falling back to its id.
func (a AllowedValue) Title() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID.String()
}

func (a *AllowedValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			ID   Value  `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		a.ID, a.Name = obj.ID, obj.Name
		return nil
	}
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	a.ID, a.Name = v, ""
	return nil
}

// Selector is a named axis of an indicator's parameter space.
type Selector struct {
	ID            string         `json:"id"`
	AllowedValues []AllowedValue `json:"allowedValues"`
	// Time marks the selector as a time axis that can be searched as a series.
	Time bool `json:"time,omitempty"`
}

// Allows reports whether v is one of the selector's allowed values.
func (s *Selector) Allows(v Value) bool {
	for _, allowed := range s.AllowedValues {
		if allowed.ID == v {
			return true
		}
	}
	return false
}

// ValueIDs returns the allowed value ids in metadata order.
func (s *Selector) ValueIDs() []Value {
	ids := make([]Value, len(s.AllowedValues))
	for i, allowed := range s.AllowedValues {
		ids[i] = allowed.ID
	}
	return ids
}

// IndicatorMetadata describes the selectors and regionsets an indicator
// supports. It is immutable for the duration of a search.
type IndicatorMetadata struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Source      string     `json:"source,omitempty"`
	Selectors   []Selector `json:"selectors"`
	Regionsets  []int      `json:"regionsets"`
}

// Selector returns the selector with the given id.
func (m *IndicatorMetadata) Selector(id string) (*Selector, bool) {
	for i := range m.Selectors {
		if m.Selectors[i].ID == id {
			return &m.Selectors[i], true
		}
	}
	return nil, false
}

// SupportsRegionset reports whether the indicator has data for the regionset.
func (m *IndicatorMetadata) SupportsRegionset(id int) bool {
	for _, rs := range m.Regionsets {
		if rs == id {
			return true
		}
	}
	return false
}

// DisplayName is the name used in user facing messages.
func (m *IndicatorMetadata) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// IndicatorInfo is a lightweight indicator listing entry.
type IndicatorInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Regionsets []int  `json:"regionsets"`
}

// Selection is the selected value of one selector: either a scalar or, for
// multiselect, a list of values. Values is nil for scalar selections.
type Selection struct {
	Value  Value
	Values []Value
}

// Scalar returns a single value selection.
func Scalar(v Value) Selection {
	return Selection{Value: v}
}

// Multi returns a multiselect selection.
func Multi(values ...Value) Selection {
	if values == nil {
		values = []Value{}
	}
	return Selection{Values: values}
}

// IsMulti reports whether the selection holds several values.
func (s Selection) IsMulti() bool {
	return s.Values != nil
}

func (s Selection) Clone() Selection {
	return Selection{Value: s.Value, Values: CloneValues(s.Values)}
}

func (s Selection) String() string {
	if !s.IsMulti() {
		return s.Value.String()
	}
	parts := make([]string, len(s.Values))
	for i, v := range s.Values {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (s Selection) MarshalJSON() ([]byte, error) {
	if s.IsMulti() {
		return json.Marshal(s.Values)
	}
	return json.Marshal(s.Value)
}

func (s *Selection) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var values []Value
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*s = Multi(values...)
		return nil
	}
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Scalar(v)
	return nil
}

// Selections maps selector ids to selections.
type Selections map[string]Selection

func (s Selections) Clone() Selections {
	if s == nil {
		return nil
	}
	out := make(Selections, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// Keys returns the selector ids in sorted order.
func (s Selections) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SeriesSpec requests one indicator across several values of a time selector.
type SeriesSpec struct {
	ID     string  `json:"id"`
	Values []Value `json:"values"`
}

func (s *SeriesSpec) Clone() *SeriesSpec {
	if s == nil {
		return nil
	}
	return &SeriesSpec{ID: s.ID, Values: CloneValues(s.Values)}
}

// CommonSearchValues is the normalized search request shared by every
// selected indicator.
type CommonSearchValues struct {
	Datasource string      `json:"datasource"`
	Indicators []string    `json:"indicators"`
	Selections Selections  `json:"selections"`
	Series     *SeriesSpec `json:"series,omitempty"`
	Regionset  int         `json:"regionset"`
}

// Clone returns a deep copy.
func (c CommonSearchValues) Clone() CommonSearchValues {
	out := c
	out.Indicators = append([]string(nil), c.Indicators...)
	out.Selections = c.Selections.Clone()
	out.Series = c.Series.Clone()
	return out
}

// DataQuery identifies one indicator data request.
type DataQuery struct {
	Datasource string
	Indicator  string
	Selections Selections
	Series     *SeriesSpec
	Regionset  int
}

// IndicatorData maps region ids to values. Nil entries are missing values.
type IndicatorData map[string]*float64

// HasNumericValue reports whether at least one region carries a number.
func (d IndicatorData) HasNumericValue() bool {
	for _, v := range d {
		if v != nil && !math.IsNaN(*v) {
			return true
		}
	}
	return false
}

// Indicator is an indicator committed to the persistent indicator state.
type Indicator struct {
	Hash       string      `json:"hash"`
	Datasource string      `json:"datasource"`
	Indicator  string      `json:"indicator"`
	Name       string      `json:"name,omitempty"`
	Selections Selections  `json:"selections"`
	Series     *SeriesSpec `json:"series,omitempty"`
}

// NewIndicator builds an Indicator with its fingerprint filled in.
func NewIndicator(datasource, indicator string, selections Selections, series *SeriesSpec) Indicator {
	return Indicator{
		Hash:       Fingerprint(datasource, indicator, selections, series),
		Datasource: datasource,
		Indicator:  indicator,
		Selections: selections.Clone(),
		Series:     series.Clone(),
	}
}

// Fingerprint identifies an indicator selection. Selections are keyed in
// sorted order so the result does not depend on map iteration order.
// Components are escaped, so delimiters inside ids cannot make two
// selections collide.
func Fingerprint(datasource, indicator string, selections Selections, series *SeriesSpec) string {
	var b strings.Builder
	b.WriteString(fingerprintEscaper.Replace(datasource))
	b.WriteByte('_')
	b.WriteString(fingerprintEscaper.Replace(indicator))
	b.WriteByte('_')
	for i, key := range selections.Keys() {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(fingerprintEscaper.Replace(key))
		b.WriteByte('=')
		writeFingerprintSelection(&b, selections[key])
	}
	if series != nil {
		b.WriteString("_series=")
		b.WriteString(fingerprintEscaper.Replace(series.ID))
		for _, v := range series.Values {
			b.WriteByte(',')
			b.WriteString(fingerprintEscaper.Replace(v.String()))
		}
	}
	return b.String()
}

func writeFingerprintSelection(b *strings.Builder, s Selection) {
	if !s.IsMulti() {
		b.WriteString(fingerprintEscaper.Replace(s.Value.String()))
		return
	}
	b.WriteByte('[')
	for i, v := range s.Values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fingerprintEscaper.Replace(v.String()))
	}
	b.WriteByte(']')
}

var fingerprintEscaper = strings.NewReplacer(
	`[`, `\[`,
	`\`, `\\`,
	`_`, `\_`,
	`:`, `\:`,
	`=`, `\=`,
	`,`, `\,`,
)

// ParseRegionset parses a regionset id.
func ParseRegionset(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid regionset %q: %w", s, err)
	}
	return id, nil
}

// DatasourceInfo describes a configured datasource.
type DatasourceInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// User marks datasources holding the user's own indicators; they may
	// legitimately be empty.
	User       bool  `json:"user"`
	Regionsets []int `json:"regionsets,omitempty"`
}

// SearchRecord summarizes one finished search.
type SearchRecord struct {
	ID         string    `json:"id"`
	Datasource string    `json:"datasource"`
	Indicators []string  `json:"indicators"`
	Probes     int       `json:"probes"`
	Successful int       `json:"successful"`
	Added      int       `json:"added"`
	Active     string    `json:"active,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}
