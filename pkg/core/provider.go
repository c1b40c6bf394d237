package core

import (
	"context"
)

// Provider is a statistics datasource: it lists indicators, describes their
// parameter space and serves indicator data.
//
// Providers are self-contained units that:
// - Know how to reach their backing service or file
// - Describe every indicator with IndicatorMetadata
// - Manage their own configuration and lifecycle
//
// Key concepts:
// - Type vs Name: Type is the provider kind (e.g., "rest"), Name is the configured instance (e.g., "sotkanet")
// - Metadata drives validation: the search pipeline never sends a selector
//   value the metadata does not allow
//
// Registration pattern:
//
//	func init() {
//		core.RegisterProviderPrototype("myapi", &Provider{})
//	}
type Provider interface {
	// Type returns the provider type identifier (e.g. "file", "rest").
	Type() string

	// Name returns the configured instance name. Search requests reference
	// datasources by this name.
	Name() string

	// ListIndicators returns the indicators the datasource offers.
	ListIndicators(ctx context.Context) ([]IndicatorInfo, error)

	// IndicatorMetadata returns the metadata of one indicator. A nil result
	// with a nil error means the indicator is unknown.
	IndicatorMetadata(ctx context.Context, indicator string) (*IndicatorMetadata, error)

	// IndicatorData returns the region values for one fully pinned query.
	// Regions without a value map to nil.
	IndicatorData(ctx context.Context, query DataQuery) (IndicatorData, error)

	// ConfigType returns a pointer to an empty configuration struct.
	ConfigType() interface{}

	// SetConfig validates and applies the configuration.
	SetConfig(config interface{}) error

	// GetConfig returns the current configuration.
	GetConfig() interface{}

	// Close releases clients, files and other resources.
	Close() error

	// Factory creates a new provider instance of this type. config may be
	// nil; the registry applies the real configuration with SetConfig.
	Factory(instanceName string, config interface{}) (Provider, error)
}

// Reloader is implemented by providers backed by local files that can
// change while the process runs.
type Reloader interface {
	// Sources returns the files to watch.
	Sources() []string
	Reload(ctx context.Context) error
}

// Titled is implemented by providers with a display name of their own.
type Titled interface {
	Title() string
}
