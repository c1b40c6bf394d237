package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rubiojr/statsgrid/pkg/core"
)

var (
	ErrCannotDisplayAsSeries = errors.New("indicator cannot be displayed as a time series")
	ErrIndicatorListEmpty    = errors.New("datasource has no indicators")
	ErrRegionsetsEmpty       = errors.New("indicator has no regionsets")
)

// Catalog is what the builder needs to know about datasources.
type Catalog interface {
	Datasource(name string) (core.DatasourceInfo, bool)
	ListIndicators(ctx context.Context, datasource string) ([]core.IndicatorInfo, error)
	IndicatorMetadata(ctx context.Context, datasource, indicator string) (*core.IndicatorMetadata, error)
	// UnsupportedDatasources returns the datasources that support none of
	// the given regionsets.
	UnsupportedDatasources(ctx context.Context, regionsets []int) []string
}

// IndicatorOption is an entry of the indicator picker.
type IndicatorOption struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Regionsets []int  `json:"regionsets"`
	Disabled   bool   `json:"disabled"`
}

// ParamSelector is a selector combined across the selected indicators.
type ParamSelector struct {
	ID     string              `json:"id"`
	Values []core.AllowedValue `json:"values"`
	Time   bool                `json:"time"`
}

// IndicatorParams holds the combined selectors of the selected indicators
// and the current selections. In time series mode the time selector's
// selection is a two value [lo, hi] range.
type IndicatorParams struct {
	Datasource string          `json:"datasource"`
	Indicators []string        `json:"indicators"`
	Selectors  []ParamSelector `json:"selectors"`
	Regionsets []int           `json:"regionsets"`
	Selected   core.Selections `json:"selected"`
	Regionset  int             `json:"regionset"`
}

func (p *IndicatorParams) selector(id string) *ParamSelector {
	for i := range p.Selectors {
		if p.Selectors[i].ID == id {
			return &p.Selectors[i]
		}
	}
	return nil
}

func (p *IndicatorParams) timeSelector() *ParamSelector {
	for i := range p.Selectors {
		if p.Selectors[i].Time {
			return &p.Selectors[i]
		}
	}
	return nil
}

func (p *IndicatorParams) clone() *IndicatorParams {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Indicators = append([]string(nil), p.Indicators...)
	cp.Regionsets = append([]int(nil), p.Regionsets...)
	cp.Selected = p.Selected.Clone()
	cp.Selectors = make([]ParamSelector, len(p.Selectors))
	for i, sel := range p.Selectors {
		cp.Selectors[i] = ParamSelector{ID: sel.ID, Time: sel.Time, Values: append([]core.AllowedValue(nil), sel.Values...)}
	}
	return &cp
}

// BuilderState is a copy of the builder state.
type BuilderState struct {
	Datasource          string            `json:"datasource"`
	UserDatasource      bool              `json:"user_datasource"`
	Indicators          []string          `json:"indicators"`
	Options             []IndicatorOption `json:"options"`
	RegionsetFilter     []int             `json:"regionset_filter"`
	DisabledDatasources []string          `json:"disabled_datasources"`
	Timeseries          bool              `json:"timeseries"`
	Params              *IndicatorParams  `json:"params,omitempty"`
}

// Builder owns the mutable search form. Searches never read it directly;
// they run on the immutable values returned by Snapshot.
type Builder struct {
	catalog Catalog

	mu                  sync.Mutex
	datasource          string
	userDatasource      bool
	indicators          []string
	options             []IndicatorOption
	regionsetFilter     []int
	disabledDatasources []string
	timeseries          bool
	params              *IndicatorParams
}

func NewBuilder(catalog Catalog) *Builder {
	return &Builder{catalog: catalog}
}

// State returns a copy of the current form state.
func (b *Builder) State() BuilderState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BuilderState{
		Datasource:          b.datasource,
		UserDatasource:      b.userDatasource,
		Indicators:          append([]string(nil), b.indicators...),
		Options:             append([]IndicatorOption(nil), b.options...),
		RegionsetFilter:     append([]int(nil), b.regionsetFilter...),
		DisabledDatasources: append([]string(nil), b.disabledDatasources...),
		Timeseries:          b.timeseries,
		Params:              b.params.clone(),
	}
}

// Clear resets the form.
func (b *Builder) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

func (b *Builder) clearLocked() {
	b.timeseries = false
	b.datasource = ""
	b.userDatasource = false
	b.indicators = nil
	b.regionsetFilter = nil
	b.disabledDatasources = nil
	b.options = nil
	b.params = nil
}

// SelectDatasource switches the datasource without loading its indicators.
func (b *Builder) SelectDatasource(name string) error {
	info, ok := b.catalog.Datasource(name)
	if !ok {
		return fmt.Errorf("datasource %s not found", name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.datasource = name
	b.userDatasource = info.User
	b.indicators = nil
	b.params = nil
	b.options = nil
	return nil
}

// SetDatasource switches the datasource and loads its indicator options.
func (b *Builder) SetDatasource(ctx context.Context, name string) error {
	if err := b.SelectDatasource(name); err != nil {
		return err
	}
	return b.LoadOptions(ctx)
}

// LoadOptions fetches the indicator list of the selected datasource.
func (b *Builder) LoadOptions(ctx context.Context) error {
	b.mu.Lock()
	datasource, user := b.datasource, b.userDatasource
	b.mu.Unlock()
	if datasource == "" {
		return nil
	}

	list, err := b.catalog.ListIndicators(ctx, datasource)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.datasource != datasource {
		// Datasource changed while loading.
		return nil
	}
	if err != nil {
		b.options = nil
		return fmt.Errorf("listing indicators of %s: %w", datasource, err)
	}
	options := make([]IndicatorOption, len(list))
	for i, ind := range list {
		title := ind.Name
		if title == "" {
			title = ind.ID
		}
		options[i] = IndicatorOption{ID: ind.ID, Title: title, Regionsets: ind.Regionsets}
	}
	b.options = b.validateOptionsLocked(options)
	if !user && len(list) == 0 {
		return ErrIndicatorListEmpty
	}
	return nil
}

// IndicatorOptions returns the indicator picker entries: enabled first,
// then those not supporting any filtered regionset.
func (b *Builder) IndicatorOptions() []IndicatorOption {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]IndicatorOption(nil), b.options...)
}

func (b *Builder) validateOptionsLocked(options []IndicatorOption) []IndicatorOption {
	out := make([]IndicatorOption, len(options))
	for i, opt := range options {
		opt.Disabled = false
		if len(b.regionsetFilter) > 0 {
			opt.Disabled = !supportsAny(opt.Regionsets, b.regionsetFilter)
		}
		out[i] = opt
	}
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].Disabled && out[j].Disabled
	})
	return out
}

func supportsAny(regionsets, filter []int) bool {
	for _, want := range filter {
		for _, rs := range regionsets {
			if rs == want {
				return true
			}
		}
	}
	return false
}

// SetRegionsetFilter restricts the form to datasources and indicators
// supporting at least one of ids. When the selected datasource does not,
// the form is cleared.
func (b *Builder) SetRegionsetFilter(ctx context.Context, ids []int) {
	var unsupported []string
	if len(ids) > 0 {
		unsupported = b.catalog.UnsupportedDatasources(ctx, ids)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.regionsetFilter = append([]int(nil), ids...)
	if len(ids) == 0 {
		b.disabledDatasources = nil
		b.options = b.validateOptionsLocked(b.options)
		return
	}
	for _, name := range unsupported {
		if name == b.datasource {
			b.clearLocked()
			return
		}
	}
	// Disabled indicators could not be unselected any more.
	b.indicators = nil
	b.params = nil
	b.disabledDatasources = unsupported
	b.options = b.validateOptionsLocked(b.options)
}

// SetIndicators selects indicators and combines their parameters.
func (b *Builder) SetIndicators(ctx context.Context, ids []string) error {
	ids = nonEmpty(ids)

	b.mu.Lock()
	datasource := b.datasource
	b.indicators = ids
	if len(ids) == 0 {
		b.params = nil
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	params := &IndicatorParams{Datasource: datasource, Indicators: ids}
	for _, id := range ids {
		md, err := b.catalog.IndicatorMetadata(ctx, datasource, id)
		if err != nil {
			return &core.SearchError{Kind: core.MetadataFetchFailed, Indicator: id, Err: err}
		}
		if md == nil {
			return core.NewSearchError(core.MetadataNotFound, id)
		}
		combineParams(params, md)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.datasource != datasource {
		return nil
	}
	var errs []error
	if len(params.Regionsets) == 0 {
		errs = append(errs, ErrRegionsetsEmpty)
	}
	if err := b.initSelectionsLocked(params); err != nil {
		errs = append(errs, err)
	}
	b.params = params
	return errors.Join(errs...)
}

// combineParams merges one indicator's selectors and regionsets into p.
// Values are unioned by id in first-seen order.
func combineParams(p *IndicatorParams, md *core.IndicatorMetadata) {
	for _, rs := range md.Regionsets {
		if !containsInt(p.Regionsets, rs) {
			p.Regionsets = append(p.Regionsets, rs)
		}
	}
	for _, sel := range md.Selectors {
		combined := p.selector(sel.ID)
		if combined == nil {
			p.Selectors = append(p.Selectors, ParamSelector{ID: sel.ID, Time: sel.Time})
			combined = &p.Selectors[len(p.Selectors)-1]
		}
		for _, v := range sel.AllowedValues {
			if !hasAllowedValue(combined.Values, v.ID) {
				combined.Values = append(combined.Values, v)
			}
		}
	}
}

func hasAllowedValue(values []core.AllowedValue, id core.Value) bool {
	for _, v := range values {
		if v.ID == id {
			return true
		}
	}
	return false
}

func containsInt(values []int, v int) bool {
	for _, cur := range values {
		if cur == v {
			return true
		}
	}
	return false
}

// initSelectionsLocked selects the first value of every selector, or the
// [first, last] range of the time selector in time series mode.
func (b *Builder) initSelectionsLocked(p *IndicatorParams) error {
	var err error
	p.Selected = core.Selections{}
	for _, sel := range p.Selectors {
		if len(sel.Values) == 0 {
			continue
		}
		first := sel.Values[0].ID
		if sel.Time && b.timeseries {
			if len(sel.Values) <= 1 {
				b.timeseries = false
				err = ErrCannotDisplayAsSeries
			} else {
				p.Selected[sel.ID] = seriesRange(first, sel.Values[len(sel.Values)-1].ID)
				continue
			}
		}
		p.Selected[sel.ID] = core.Scalar(first)
	}
	p.Regionset = 0
	if len(p.Regionsets) > 0 {
		p.Regionset = p.Regionsets[0]
	}
	return err
}

func seriesRange(a, b core.Value) core.Selection {
	pair := []core.Value{a, b}
	core.SortValues(pair)
	return core.Multi(pair...)
}

// SetSearchTimeseries toggles time series mode. Enabling it without a time
// selector having at least two values fails with ErrCannotDisplayAsSeries
// and leaves the mode off.
func (b *Builder) SetSearchTimeseries(enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeseries = enabled
	if b.params == nil {
		return nil
	}
	sel := b.params.timeSelector()
	if sel == nil {
		if enabled {
			b.timeseries = false
			return ErrCannotDisplayAsSeries
		}
		return nil
	}
	if len(sel.Values) == 0 {
		b.timeseries = false
		if enabled {
			return ErrCannotDisplayAsSeries
		}
		return nil
	}
	selected := core.Scalar(sel.Values[0].ID)
	var err error
	if enabled {
		if len(sel.Values) <= 1 {
			b.timeseries = false
			err = ErrCannotDisplayAsSeries
		} else {
			selected = seriesRange(sel.Values[0].ID, sel.Values[len(sel.Values)-1].ID)
		}
	}
	b.params.Selected[sel.ID] = selected
	return err
}

// SetParamSelection sets the selection of one combined selector.
func (b *Builder) SetParamSelection(key string, value core.Selection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.params == nil {
		return ErrNoIndicators
	}
	if b.params.selector(key) == nil {
		return fmt.Errorf("unknown selector %q", key)
	}
	b.params.Selected[key] = value.Clone()
	return nil
}

// SetParamRange sets the [lo, hi] range of the time selector.
func (b *Builder) SetParamRange(key string, lo, hi core.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.params == nil {
		return ErrNoIndicators
	}
	sel := b.params.selector(key)
	if sel == nil {
		return fmt.Errorf("unknown selector %q", key)
	}
	if !sel.Time {
		return fmt.Errorf("selector %q is not a time selector", key)
	}
	b.params.Selected[key] = seriesRange(lo, hi)
	return nil
}

// SetRegionset selects the regionset to search.
func (b *Builder) SetRegionset(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.params == nil {
		return ErrNoIndicators
	}
	b.params.Regionset = id
	return nil
}

// Snapshot returns the search values for the current form. The result
// shares nothing with the builder.
func (b *Builder) Snapshot() (core.CommonSearchValues, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.params == nil || len(b.indicators) == 0 {
		return core.CommonSearchValues{}, ErrNoIndicators
	}
	p := b.params
	values := core.CommonSearchValues{
		Datasource: b.datasource,
		Indicators: append([]string(nil), b.indicators...),
		Selections: p.Selected.Clone(),
		Regionset:  p.Regionset,
	}

	timeSel := p.timeSelector()
	if !b.timeseries || timeSel == nil {
		return values, nil
	}
	rng, ok := values.Selections[timeSel.ID]
	if !ok || !rng.IsMulti() || len(rng.Values) != 2 {
		return values, nil
	}
	lo, hi := rng.Values[0], rng.Values[1]
	var series []core.Value
	for _, v := range timeSel.Values {
		if core.CompareValues(v.ID, lo) >= 0 && core.CompareValues(v.ID, hi) <= 0 {
			series = append(series, v.ID)
		}
	}
	core.SortValues(series)
	values.Selections[timeSel.ID] = core.Scalar(lo)
	values.Series = &core.SeriesSpec{ID: timeSel.ID, Values: series}
	return values, nil
}

// Form is a complete search form, as submitted by API clients.
type Form struct {
	Datasource string          `json:"datasource"`
	Indicators []string        `json:"indicators"`
	Selections core.Selections `json:"selections"`
	Regionset  int             `json:"regionset"`
	// Series searches the time selector over its selected [lo, hi] range.
	Series bool `json:"series"`
}

// BuildRequest runs a form through a fresh builder and returns the
// normalized search values.
func BuildRequest(ctx context.Context, catalog Catalog, form Form) (core.CommonSearchValues, error) {
	b := NewBuilder(catalog)
	if err := b.SelectDatasource(form.Datasource); err != nil {
		return core.CommonSearchValues{}, err
	}
	if err := b.SetIndicators(ctx, form.Indicators); err != nil && !errors.Is(err, ErrRegionsetsEmpty) {
		return core.CommonSearchValues{}, err
	}
	if form.Series {
		if err := b.SetSearchTimeseries(true); err != nil {
			return core.CommonSearchValues{}, err
		}
	}
	for _, key := range form.Selections.Keys() {
		sel := form.Selections[key]
		var err error
		if form.Series && sel.IsMulti() && len(sel.Values) == 2 && b.isTimeSelector(key) {
			err = b.SetParamRange(key, sel.Values[0], sel.Values[1])
		} else {
			err = b.SetParamSelection(key, sel)
		}
		if err != nil {
			return core.CommonSearchValues{}, err
		}
	}
	if form.Regionset != 0 {
		if err := b.SetRegionset(form.Regionset); err != nil {
			return core.CommonSearchValues{}, err
		}
	}
	return b.Snapshot()
}

func (b *Builder) isTimeSelector(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.params == nil {
		return false
	}
	sel := b.params.selector(key)
	return sel != nil && sel.Time
}
