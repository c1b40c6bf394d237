package core

import (
	"encoding/json"
	"fmt"
)

// ErrorKind enumerates the per-indicator search failures.
type ErrorKind int

const (
	// RegionsetNotAllowed: the indicator has no data for the requested regionset.
	RegionsetNotAllowed ErrorKind = iota + 1
	// SelectorNotAllowed: a scalar selector value, or every value of a
	// multiselect, is outside the selector's allowed values.
	SelectorNotAllowed
	// DatasetEmpty: no probe for the indicator returned data.
	DatasetEmpty
	// PartialMultiselect: some multiselect or series values were dropped.
	PartialMultiselect
	// MetadataFetchFailed: the metadata lookup returned an error.
	MetadataFetchFailed
	// MetadataNotFound: the datasource returned no metadata for the indicator.
	MetadataNotFound
	// ProbeFailed: a data availability probe returned an error.
	ProbeFailed
)

var kindNames = map[ErrorKind]string{
	RegionsetNotAllowed: "regionset_not_allowed",
	SelectorNotAllowed:  "selector_not_allowed",
	DatasetEmpty:        "dataset_empty",
	PartialMultiselect:  "partial_multiselect",
	MetadataFetchFailed: "metadata_fetch_failed",
	MetadataNotFound:    "metadata_not_found",
	ProbeFailed:         "probe_failed",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// SearchError is the error recorded for one indicator of a search.
type SearchError struct {
	Kind      ErrorKind
	Indicator string
	Selector  string
	Err       error
}

// Sentinels for errors.Is. A sentinel matches every SearchError of its kind.
var (
	ErrRegionsetNotAllowed = &SearchError{Kind: RegionsetNotAllowed}
	ErrSelectorNotAllowed  = &SearchError{Kind: SelectorNotAllowed}
	ErrDatasetEmpty        = &SearchError{Kind: DatasetEmpty}
	ErrPartialMultiselect  = &SearchError{Kind: PartialMultiselect}
	ErrMetadataFetchFailed = &SearchError{Kind: MetadataFetchFailed}
	ErrMetadataNotFound    = &SearchError{Kind: MetadataNotFound}
	ErrProbeFailed         = &SearchError{Kind: ProbeFailed}
)

func NewSearchError(kind ErrorKind, indicator string) *SearchError {
	return &SearchError{Kind: kind, Indicator: indicator}
}

// SelectorError returns a SelectorNotAllowed error for the given selector.
func SelectorError(indicator, selector string) *SearchError {
	return &SearchError{Kind: SelectorNotAllowed, Indicator: indicator, Selector: selector}
}

func (e *SearchError) Error() string {
	var msg string
	switch e.Kind {
	case RegionsetNotAllowed:
		msg = "regionset not allowed"
	case SelectorNotAllowed:
		msg = fmt.Sprintf("value not allowed for selector %q", e.Selector)
	case DatasetEmpty:
		msg = "dataset empty"
	case PartialMultiselect:
		msg = fmt.Sprintf("some values not available for selector %q", e.Selector)
	case MetadataFetchFailed:
		msg = "fetching metadata failed"
	case MetadataNotFound:
		msg = "metadata not found"
	case ProbeFailed:
		msg = "data request failed"
	default:
		msg = e.Kind.String()
	}
	if e.Indicator != "" {
		msg = fmt.Sprintf("indicator %s: %s", e.Indicator, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, and by selector when the target names one.
func (e *SearchError) Is(target error) bool {
	t, ok := target.(*SearchError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Selector == "" || t.Selector == e.Selector
}

// Terminal reports whether the indicator cannot be searched at all.
func (e *SearchError) Terminal() bool {
	return e.Kind != PartialMultiselect
}

func (e *SearchError) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind      string `json:"kind"`
		Indicator string `json:"indicator,omitempty"`
		Selector  string `json:"selector,omitempty"`
		Message   string `json:"message"`
	}{
		Kind:      e.Kind.String(),
		Indicator: e.Indicator,
		Selector:  e.Selector,
		Message:   e.Error(),
	}
	return json.Marshal(out)
}
