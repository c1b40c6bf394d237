package file

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rubiojr/statsgrid/pkg/core"
)

// Catalog files describe indicators together with their data:
//
//	name = "Sample statistics"
//
//	[[indicators]]
//	id = "127"
//	name = "Unemployment rate"
//	regionsets = [1851]
//
//	[[indicators.selectors]]
//	id = "year"
//	time = true
//	values = [2019, 2020]
//
//	[[indicators.data]]
//	regionset = 1851
//	selections = { year = 2019 }
//	values = { "091" = 7.5, "049" = 6.1 }
//
// The JSON form uses the same field names. Selector values may also be
// {id, name} objects.
type catalogDoc struct {
	Name       string         `toml:"name" json:"name"`
	Indicators []indicatorDoc `toml:"indicators" json:"indicators"`
}

type indicatorDoc struct {
	ID          string        `toml:"id" json:"id"`
	Name        string        `toml:"name" json:"name"`
	Description string        `toml:"description" json:"description"`
	Source      string        `toml:"source" json:"source"`
	Regionsets  []int         `toml:"regionsets" json:"regionsets"`
	Selectors   []selectorDoc `toml:"selectors" json:"selectors"`
	Data        []dataDoc     `toml:"data" json:"data"`
}

type selectorDoc struct {
	ID     string `toml:"id" json:"id"`
	Time   bool   `toml:"time" json:"time"`
	Values []any  `toml:"values" json:"values"`
}

type dataDoc struct {
	Regionset  int            `toml:"regionset" json:"regionset"`
	Selections map[string]any `toml:"selections" json:"selections"`
	Values     map[string]any `toml:"values" json:"values"`
}

// catalog is a decoded catalog file, indexed for lookups.
type catalog struct {
	name     string
	order    []string
	metadata map[string]*core.IndicatorMetadata
	data     map[string]map[string]core.IndicatorData
}

// decodeCatalog parses raw catalog bytes. format is "toml" or "json".
func decodeCatalog(raw []byte, format string) (*catalog, error) {
	var doc catalogDoc
	switch format {
	case "toml":
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing toml catalog: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parsing json catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}

	c := &catalog{
		name:     doc.Name,
		metadata: make(map[string]*core.IndicatorMetadata, len(doc.Indicators)),
		data:     make(map[string]map[string]core.IndicatorData, len(doc.Indicators)),
	}
	for _, ind := range doc.Indicators {
		if ind.ID == "" {
			return nil, fmt.Errorf("indicator without id")
		}
		if _, dup := c.metadata[ind.ID]; dup {
			return nil, fmt.Errorf("duplicate indicator %s", ind.ID)
		}
		md := &core.IndicatorMetadata{
			ID:          ind.ID,
			Name:        ind.Name,
			Description: ind.Description,
			Source:      ind.Source,
			Regionsets:  ind.Regionsets,
		}
		for _, sel := range ind.Selectors {
			selector := core.Selector{ID: sel.ID, Time: sel.Time}
			for _, raw := range sel.Values {
				v, err := allowedValue(raw)
				if err != nil {
					return nil, fmt.Errorf("indicator %s selector %s: %w", ind.ID, sel.ID, err)
				}
				selector.AllowedValues = append(selector.AllowedValues, v)
			}
			md.Selectors = append(md.Selectors, selector)
		}

		rows := make(map[string]core.IndicatorData, len(ind.Data))
		for i, row := range ind.Data {
			selections := core.Selections{}
			for key, raw := range row.Selections {
				v, err := core.ValueOf(raw)
				if err != nil {
					return nil, fmt.Errorf("indicator %s data row %d selector %s: %w", ind.ID, i, key, err)
				}
				selections[key] = core.Scalar(v)
			}
			values := make(core.IndicatorData, len(row.Values))
			for region, raw := range row.Values {
				f, err := regionValue(raw)
				if err != nil {
					return nil, fmt.Errorf("indicator %s data row %d region %s: %w", ind.ID, i, region, err)
				}
				values[region] = f
			}
			rows[dataKey(selections, row.Regionset)] = values
		}

		c.order = append(c.order, ind.ID)
		c.metadata[ind.ID] = md
		c.data[ind.ID] = rows
	}
	return c, nil
}

func allowedValue(raw any) (core.AllowedValue, error) {
	if obj, ok := raw.(map[string]any); ok {
		id, err := core.ValueOf(obj)
		if err != nil {
			return core.AllowedValue{}, err
		}
		name, _ := obj["name"].(string)
		return core.AllowedValue{ID: id, Name: name}, nil
	}
	id, err := core.ValueOf(raw)
	if err != nil {
		return core.AllowedValue{}, err
	}
	return core.AllowedValue{ID: id}, nil
}

func regionValue(raw any) (*float64, error) {
	var f float64
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case json.Number:
		v, err := t.Float64()
		if err != nil {
			return nil, err
		}
		f = v
	case float64:
		f = t
	case int64:
		f = float64(t)
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, err
		}
		f = v
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
	return &f, nil
}

// dataKey identifies a data row. Only scalar selections can match a row.
func dataKey(selections core.Selections, regionset int) string {
	var b strings.Builder
	for i, key := range selections.Keys() {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(selections[key].String())
	}
	b.WriteByte('@')
	b.WriteString(strconv.Itoa(regionset))
	return b.String()
}

// catalogFormat returns the catalog format for a path, ignoring a trailing
// .zst extension, and whether the file is zstd compressed.
func catalogFormat(path string) (string, bool) {
	compressed := strings.HasSuffix(path, ".zst")
	base := strings.TrimSuffix(path, ".zst")
	switch strings.ToLower(filepath.Ext(base)) {
	case ".json":
		return "json", compressed
	default:
		return "toml", compressed
	}
}
