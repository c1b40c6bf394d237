package file

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/log"
)

func init() {
	prototype := &Datasource{}
	core.RegisterProviderPrototype("file", prototype)
}

type Config struct {
	Path string `toml:"path"`
	// Name overrides the catalog's display name.
	Name string `toml:"name,omitempty"`
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path must be specified")
	}
	return nil
}

// Datasource serves indicators from a local catalog file. The file is read
// lazily and kept in memory until Reload.
type Datasource struct {
	config       *Config
	decoder      *zstd.Decoder
	instanceName string

	mu      sync.RWMutex
	catalog *catalog
}

func NewDatasource(instanceName string, config interface{}) (core.Provider, error) {
	var fileConfig *Config
	if config == nil {
		fileConfig = &Config{}
	} else {
		var ok bool
		fileConfig, ok = config.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for file datasource")
		}
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Datasource{
		config:       fileConfig,
		decoder:      decoder,
		instanceName: instanceName,
	}, nil
}

func (d *Datasource) Type() string {
	return "file"
}

func (d *Datasource) Name() string {
	return d.instanceName
}

// Title is the catalog display name.
func (d *Datasource) Title() string {
	if d.config.Name != "" {
		return d.config.Name
	}
	c, err := d.load()
	if err != nil || c.name == "" {
		return d.instanceName
	}
	return c.name
}

func (d *Datasource) ConfigType() interface{} {
	return &Config{}
}

func (d *Datasource) SetConfig(config interface{}) error {
	if cfg, ok := config.(*Config); ok {
		d.mu.Lock()
		d.config = cfg
		d.catalog = nil
		d.mu.Unlock()
		return cfg.Validate()
	}
	return fmt.Errorf("invalid config type for file datasource")
}

func (d *Datasource) GetConfig() interface{} {
	return d.config
}

// Sources returns the files the datasource reads.
func (d *Datasource) Sources() []string {
	return []string{d.config.Path}
}

// Reload rereads the catalog file.
func (d *Datasource) Reload(ctx context.Context) error {
	c, err := d.read()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.catalog = c
	d.mu.Unlock()
	log.ForService("file:"+d.instanceName).Infof("Reloaded %d indicators from %s", len(c.order), d.config.Path)
	return nil
}

func (d *Datasource) load() (*catalog, error) {
	d.mu.RLock()
	c := d.catalog
	d.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	c, err := d.read()
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.catalog == nil {
		d.catalog = c
	}
	c = d.catalog
	d.mu.Unlock()
	return c, nil
}

func (d *Datasource) read() (*catalog, error) {
	l := log.ForService("file:" + d.instanceName)
	raw, err := os.ReadFile(d.config.Path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	format, compressed := catalogFormat(d.config.Path)
	if compressed {
		raw, err = d.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing catalog %s: %w", d.config.Path, err)
		}
	}

	c, err := decodeCatalog(raw, format)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", d.config.Path, err)
	}
	l.Debugf("Loaded %d indicators from %s", len(c.order), d.config.Path)
	return c, nil
}

func (d *Datasource) ListIndicators(ctx context.Context) ([]core.IndicatorInfo, error) {
	c, err := d.load()
	if err != nil {
		return nil, err
	}
	list := make([]core.IndicatorInfo, 0, len(c.order))
	for _, id := range c.order {
		md := c.metadata[id]
		list = append(list, core.IndicatorInfo{ID: id, Name: md.Name, Regionsets: md.Regionsets})
	}
	return list, nil
}

func (d *Datasource) IndicatorMetadata(ctx context.Context, indicator string) (*core.IndicatorMetadata, error) {
	c, err := d.load()
	if err != nil {
		return nil, err
	}
	return c.metadata[indicator], nil
}

// IndicatorData returns the data row matching the query's selections and
// regionset. Unknown combinations yield empty data, not an error.
func (d *Datasource) IndicatorData(ctx context.Context, query core.DataQuery) (core.IndicatorData, error) {
	c, err := d.load()
	if err != nil {
		return nil, err
	}
	rows, ok := c.data[query.Indicator]
	if !ok {
		return nil, fmt.Errorf("indicator %s not found", query.Indicator)
	}
	data := rows[dataKey(query.Selections, query.Regionset)]
	out := make(core.IndicatorData, len(data))
	for region, v := range data {
		out[region] = v
	}
	return out, nil
}

func (d *Datasource) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
	}
	return nil
}

func (d *Datasource) Factory(instanceName string, config interface{}) (core.Provider, error) {
	return NewDatasource(instanceName, config)
}
