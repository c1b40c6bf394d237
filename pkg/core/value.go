package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is a single selector value (a year, a gender code, a regionset
// specific dimension key...). Statistics APIs mix numbers and strings for
// these so the canonical form is the textual one; numeric values compare
// numerically.
type Value string

// ValueOf converts a decoded JSON/TOML scalar into a Value. Objects carrying
// an "id" key are reduced to that id.
func ValueOf(v any) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case string:
		return Value(t), nil
	case json.Number:
		return Value(t.String()), nil
	case int:
		return Value(strconv.Itoa(t)), nil
	case int64:
		return Value(strconv.FormatInt(t, 10)), nil
	case uint64:
		return Value(strconv.FormatUint(t, 10)), nil
	case float64:
		return Value(strconv.FormatFloat(t, 'f', -1, 64)), nil
	case bool:
		return Value(strconv.FormatBool(t)), nil
	case map[string]any:
		id, ok := t["id"]
		if !ok {
			return "", fmt.Errorf("value object without id")
		}
		return ValueOf(id)
	case nil:
		return "", fmt.Errorf("nil value")
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func (v Value) String() string {
	return string(v)
}

// Float returns the numeric form of the value, if it has one.
func (v Value) Float() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// CompareValues orders numeric values numerically and everything else
// lexically. Numbers sort before non-numbers.
func CompareValues(a, b Value) int {
	fa, okA := a.Float()
	fb, okB := b.Float()
	switch {
	case okA && okB:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(string(a), string(b))
}

// SortValues sorts values in place with CompareValues.
func SortValues(values []Value) {
	sort.SliceStable(values, func(i, j int) bool {
		return CompareValues(values[i], values[j]) < 0
	})
}

// CloneValues returns a copy of values that preserves nil-ness.
func CloneValues(values []Value) []Value {
	if values == nil {
		return nil
	}
	out := make([]Value, len(values))
	copy(out, values)
	return out
}

// ContainsValue reports whether v is in values.
func ContainsValue(values []Value, v Value) bool {
	for _, cur := range values {
		if cur == v {
			return true
		}
	}
	return false
}

// MarshalJSON emits numeric values as JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	if _, ok := v.Float(); ok && json.Valid([]byte(v)) {
		return []byte(v), nil
	}
	return json.Marshal(string(v))
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
