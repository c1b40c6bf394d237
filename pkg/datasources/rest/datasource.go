package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/statsgrid/pkg/config"
	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/log"
	"github.com/rubiojr/statsgrid/pkg/version"
	"golang.org/x/time/rate"
)

func init() {
	prototype := &Datasource{}
	core.RegisterProviderPrototype("rest", prototype)
}

const defaultTimeout = 30 * time.Second

type Config struct {
	URL string `toml:"url"`
	// Rate limits requests per second. Zero means unlimited.
	Rate    float64          `toml:"rate,omitempty"`
	Burst   int              `toml:"burst,omitempty"`
	Timeout *config.Duration `toml:"timeout,omitempty"`
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url must be specified")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate must not be negative")
	}
	return nil
}

// Datasource talks to a remote statistics API:
//
//	GET {url}/indicators
//	GET {url}/indicators/{id}
//	GET {url}/indicators/{id}/data?regionset=N&selectors={"year":"2020"}
//
// statsgrid serve exposes the same routes for every configured datasource.
type Datasource struct {
	config       *Config
	client       *http.Client
	limiter      *rate.Limiter
	instanceName string
}

func NewDatasource(instanceName string, cfg interface{}) (core.Provider, error) {
	var restConfig *Config
	if cfg == nil {
		restConfig = &Config{}
	} else {
		var ok bool
		restConfig, ok = cfg.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for rest datasource")
		}
	}

	d := &Datasource{instanceName: instanceName}
	d.apply(restConfig)
	return d, nil
}

func (d *Datasource) apply(cfg *Config) {
	timeout := defaultTimeout
	if cfg.Timeout != nil && cfg.Timeout.Duration > 0 {
		timeout = cfg.Timeout.Duration
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	d.config = cfg
	d.client = &http.Client{Timeout: timeout}
	d.limiter = rate.NewLimiter(limit, burst)
}

func (d *Datasource) Type() string {
	return "rest"
}

func (d *Datasource) Name() string {
	return d.instanceName
}

func (d *Datasource) ConfigType() interface{} {
	return &Config{}
}

func (d *Datasource) SetConfig(cfg interface{}) error {
	if c, ok := cfg.(*Config); ok {
		d.apply(c)
		return c.Validate()
	}
	return fmt.Errorf("invalid config type for rest datasource")
}

func (d *Datasource) GetConfig() interface{} {
	return d.config
}

func (d *Datasource) ListIndicators(ctx context.Context) ([]core.IndicatorInfo, error) {
	var list []core.IndicatorInfo
	if _, err := d.get(ctx, "/indicators", nil, &list); err != nil {
		return nil, fmt.Errorf("listing indicators: %w", err)
	}
	return list, nil
}

func (d *Datasource) IndicatorMetadata(ctx context.Context, indicator string) (*core.IndicatorMetadata, error) {
	var md core.IndicatorMetadata
	found, err := d.get(ctx, "/indicators/"+url.PathEscape(indicator), nil, &md)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", indicator, err)
	}
	if !found {
		return nil, nil
	}
	if md.ID == "" {
		md.ID = indicator
	}
	return &md, nil
}

func (d *Datasource) IndicatorData(ctx context.Context, query core.DataQuery) (core.IndicatorData, error) {
	selectors, err := json.Marshal(query.Selections)
	if err != nil {
		return nil, fmt.Errorf("encoding selectors: %w", err)
	}
	params := url.Values{}
	params.Set("regionset", strconv.Itoa(query.Regionset))
	params.Set("selectors", string(selectors))

	var data core.IndicatorData
	found, err := d.get(ctx, "/indicators/"+url.PathEscape(query.Indicator)+"/data", params, &data)
	if err != nil {
		return nil, fmt.Errorf("fetching data for %s: %w", query.Indicator, err)
	}
	if !found {
		return nil, fmt.Errorf("indicator %s not found", query.Indicator)
	}
	return data, nil
}

// get decodes a JSON response into out. A 404 reports found == false.
func (d *Datasource) get(ctx context.Context, path string, params url.Values, out any) (bool, error) {
	l := log.ForService("rest:" + d.instanceName)

	if err := d.limiter.Wait(ctx); err != nil {
		return false, err
	}

	reqURL := strings.TrimSuffix(d.config.URL, "/") + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	l.Debugf("GET %s", reqURL)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}

func (d *Datasource) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

func (d *Datasource) Factory(instanceName string, cfg interface{}) (core.Provider, error) {
	return NewDatasource(instanceName, cfg)
}
