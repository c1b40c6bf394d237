// Package catalog puts the configured providers behind one lookup
// surface for the search pipeline and the request builder. Indicator
// metadata is fetched once per (datasource, indicator) pair and cached
// until invalidated.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/log"
	"golang.org/x/sync/singleflight"
)

type Catalog struct {
	registry *core.Registry
	logger   *log.Logger

	mu       sync.RWMutex
	infos    map[string]core.DatasourceInfo
	metadata map[string]*core.IndicatorMetadata
	group    singleflight.Group
}

func New(registry *core.Registry, infos []core.DatasourceInfo) *Catalog {
	c := &Catalog{
		registry: registry,
		logger:   log.ForService("catalog"),
		infos:    make(map[string]core.DatasourceInfo, len(infos)),
		metadata: make(map[string]*core.IndicatorMetadata),
	}
	for _, info := range infos {
		c.infos[info.Name] = info
	}
	return c
}

func cacheKey(datasource, indicator string) string {
	return datasource + "\x00" + indicator
}

func (c *Catalog) provider(name string) (core.Provider, error) {
	p, err := c.registry.GetProvider(name)
	if err != nil {
		return nil, fmt.Errorf("datasource %s: %w", name, err)
	}
	return p, nil
}

// Datasource returns the description of a configured datasource.
func (c *Catalog) Datasource(name string) (core.DatasourceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.infos[name]
	if !ok {
		return core.DatasourceInfo{}, false
	}
	info.Regionsets = append([]int(nil), info.Regionsets...)
	return info, true
}

// Datasources lists the configured datasources sorted by name.
func (c *Catalog) Datasources() []core.DatasourceInfo {
	c.mu.RLock()
	names := make([]string, 0, len(c.infos))
	for name := range c.infos {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	out := make([]core.DatasourceInfo, 0, len(names))
	for _, name := range names {
		if info, ok := c.Datasource(name); ok {
			out = append(out, info)
		}
	}
	return out
}

// Title returns the display name of a datasource.
func (c *Catalog) Title(name string) string {
	p, err := c.provider(name)
	if err != nil {
		return name
	}
	if titled, ok := p.(core.Titled); ok {
		return titled.Title()
	}
	return name
}

func (c *Catalog) ListIndicators(ctx context.Context, datasource string) ([]core.IndicatorInfo, error) {
	p, err := c.provider(datasource)
	if err != nil {
		return nil, err
	}
	return p.ListIndicators(ctx)
}

// IndicatorMetadata returns cached metadata, fetching it on first use.
// Concurrent lookups of the same pair share one fetch, which keeps running
// when the caller that started it gives up. Errors are not cached; unknown
// indicators (nil metadata) are.
func (c *Catalog) IndicatorMetadata(ctx context.Context, datasource, indicator string) (*core.IndicatorMetadata, error) {
	key := cacheKey(datasource, indicator)
	c.mu.RLock()
	md, ok := c.metadata[key]
	c.mu.RUnlock()
	if ok {
		return md, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.metadata[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		p, err := c.provider(datasource)
		if err != nil {
			return nil, err
		}
		md, err := p.IndicatorMetadata(fetchCtx, indicator)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.metadata[key] = md
		c.mu.Unlock()
		c.logger.Debugf("cached metadata for %s/%s", datasource, indicator)
		return md, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*core.IndicatorMetadata), nil
	}
}

// IndicatorData forwards a data request to the query's datasource.
func (c *Catalog) IndicatorData(ctx context.Context, query core.DataQuery) (core.IndicatorData, error) {
	p, err := c.provider(query.Datasource)
	if err != nil {
		return nil, err
	}
	return p.IndicatorData(ctx, query)
}

// Regionsets returns the regionsets a datasource supports: the configured
// ones, or the union over its indicator list.
func (c *Catalog) Regionsets(ctx context.Context, datasource string) ([]int, error) {
	info, ok := c.Datasource(datasource)
	if !ok {
		return nil, fmt.Errorf("datasource %s not found", datasource)
	}
	if len(info.Regionsets) > 0 {
		return info.Regionsets, nil
	}
	list, err := c.ListIndicators(ctx, datasource)
	if err != nil {
		return nil, err
	}
	var out []int
	seen := make(map[int]bool)
	for _, ind := range list {
		for _, rs := range ind.Regionsets {
			if !seen[rs] {
				seen[rs] = true
				out = append(out, rs)
			}
		}
	}
	return out, nil
}

// UnsupportedDatasources returns the datasources supporting none of the
// regionsets. Datasources whose regionsets cannot be determined are left
// enabled.
func (c *Catalog) UnsupportedDatasources(ctx context.Context, regionsets []int) []string {
	var out []string
	for _, info := range c.Datasources() {
		supported, err := c.Regionsets(ctx, info.Name)
		if err != nil {
			c.logger.Warnf("regionsets of %s: %v", info.Name, err)
			continue
		}
		if !intersects(supported, regionsets) {
			out = append(out, info.Name)
		}
	}
	return out
}

func intersects(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// Invalidate drops the cached metadata of a datasource.
func (c *Catalog) Invalidate(datasource string) {
	prefix := datasource + "\x00"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.metadata {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.metadata, key)
		}
	}
}

// Reset replaces the datasource descriptions and drops every cached entry.
func (c *Catalog) Reset(infos []core.DatasourceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos = make(map[string]core.DatasourceInfo, len(infos))
	for _, info := range infos {
		c.infos[info.Name] = info
	}
	c.metadata = make(map[string]*core.IndicatorMetadata)
}
