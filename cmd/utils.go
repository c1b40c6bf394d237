package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rubiojr/statsgrid/pkg/catalog"
	"github.com/rubiojr/statsgrid/pkg/config"
	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/storage"
)

// createProvidersFromConfig creates and configures providers from the config
func createProvidersFromConfig(registry *core.Registry, cfg *config.Config) error {
	for _, name := range cfg.ListDatasources() {
		if err := addProviderFromConfig(registry, cfg, name); err != nil {
			return err
		}
	}
	return nil
}

func addProviderFromConfig(registry *core.Registry, cfg *config.Config, name string) error {
	dsType, dsConfigRaw, err := cfg.GetDatasourceConfig(name)
	if err != nil {
		return fmt.Errorf("getting config for datasource %s: %w", name, err)
	}

	// Create the provider with an empty config first to learn its config type
	if err := registry.CreateProvider(name, dsType, nil); err != nil {
		return fmt.Errorf("creating datasource %s: %w", name, err)
	}
	p, err := registry.GetProvider(name)
	if err != nil {
		return fmt.Errorf("datasource %s not found after creation", name)
	}

	dsConfig, err := convertRawConfigToType(p, dsConfigRaw)
	if err != nil {
		return fmt.Errorf("converting config for datasource %s: %w", name, err)
	}

	if err := p.SetConfig(dsConfig); err != nil {
		return fmt.Errorf("setting config for datasource %s: %w", name, err)
	}
	return nil
}

// convertRawConfigToType converts raw config to the provider's expected type
func convertRawConfigToType(p core.Provider, rawConfig interface{}) (interface{}, error) {
	configType := p.ConfigType()

	if rawConfig == nil {
		return configType, nil
	}

	// Marshal and unmarshal to convert between types
	configData, err := toml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("marshaling config data: %w", err)
	}

	if err := toml.Unmarshal(configData, configType); err != nil {
		return nil, fmt.Errorf("unmarshaling datasource config: %w", err)
	}

	return configType, nil
}

// environment is what most commands need: configured providers behind a
// metadata caching catalog, plus the indicator state store.
type environment struct {
	cfg      *config.Config
	registry *core.Registry
	catalog  *catalog.Catalog
	store    *storage.Store
}

func loadEnvironment(ctx context.Context, configPath string, withStore bool) (*environment, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	registry := core.GetGlobalRegistry()
	if err := createProvidersFromConfig(registry, cfg); err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("creating datasources: %w", err)
	}

	env := &environment{
		cfg:      cfg,
		registry: registry,
		catalog:  catalog.New(registry, cfg.DatasourceInfos()),
	}

	if withStore {
		store, err := openStore(ctx, cfg)
		if err != nil {
			_ = registry.Close()
			return nil, err
		}
		env.store = store
	}
	return env, nil
}

func (e *environment) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}
	if err := e.registry.Close(); err != nil {
		fmt.Printf("Warning: failed to close registry: %v\n", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	store, err := storage.Open(ctx, cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening indicator state: %w", err)
	}
	return store, nil
}

// parseRegionsets parses repeated and comma separated regionset flags.
func parseRegionsets(values []string) ([]int, error) {
	var ids []int
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := core.ParseRegionset(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// pickLanguage returns the --lang flag value, falling back to the configured
// language.
func pickLanguage(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Language
}
