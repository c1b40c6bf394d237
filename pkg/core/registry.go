package core

import (
	"fmt"
	"sort"
	"sync"
)

// Global registry for provider self-registration
var globalRegistry = &Registry{
	prototypes: make(map[string]Provider),
	providers:  make(map[string]Provider),
}

type Registry struct {
	prototypes map[string]Provider
	providers  map[string]Provider
	mu         sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		prototypes: make(map[string]Provider),
		providers:  make(map[string]Provider),
	}
}

// RegisterProviderPrototype allows providers to register themselves during init()
func RegisterProviderPrototype(name string, prototype Provider) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.prototypes[name] = prototype
}

// GetGlobalRegistry returns a fresh registry holding every registered prototype
func GetGlobalRegistry() *Registry {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	registry := NewRegistry()
	for name, prototype := range globalRegistry.prototypes {
		registry.prototypes[name] = prototype
	}
	return registry
}

func (r *Registry) RegisterPrototype(name string, prototype Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.prototypes[name]; exists {
		return fmt.Errorf("provider prototype %s already registered", name)
	}

	r.prototypes[name] = prototype
	return nil
}

// AddProvider registers an already configured provider instance.
func (r *Registry) AddProvider(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.providers[p.Name()]; exists {
		if err := existing.Close(); err != nil {
			return fmt.Errorf("closing existing provider %s: %w", p.Name(), err)
		}
	}
	r.providers[p.Name()] = p
	return nil
}

func (r *Registry) CreateProvider(instanceName string, providerType string, config interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prototype, exists := r.prototypes[providerType]
	if !exists {
		return fmt.Errorf("provider prototype %s not found", providerType)
	}

	if validator, ok := config.(interface{ Validate() error }); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("invalid config for datasource %s: %w", instanceName, err)
		}
	}

	provider, err := prototype.Factory(instanceName, config)
	if err != nil {
		return fmt.Errorf("creating datasource %s: %w", instanceName, err)
	}

	if existing, exists := r.providers[instanceName]; exists {
		if err := existing.Close(); err != nil {
			return fmt.Errorf("closing existing datasource %s: %w", instanceName, err)
		}
	}

	r.providers[instanceName] = provider
	return nil
}

func (r *Registry) GetProvider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("datasource %s not found", name)
	}

	return provider, nil
}

func (r *Registry) GetAllProviders() map[string]Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Provider)
	for name, p := range r.providers {
		result[name] = p
	}
	return result
}

// ListProviders returns the configured datasource names, sorted.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) RemoveProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, exists := r.providers[name]
	if !exists {
		return fmt.Errorf("datasource %s not found", name)
	}

	if err := provider.Close(); err != nil {
		return fmt.Errorf("closing datasource %s: %w", name, err)
	}

	delete(r.providers, name)
	return nil
}

// ReplaceProviders swaps the whole provider set in one step, then closes the
// previous providers that are not part of the new set. Lookups see either
// the old set or the new one, never a partial registry.
func (r *Registry) ReplaceProviders(providers map[string]Provider) error {
	next := make(map[string]Provider, len(providers))
	for name, p := range providers {
		next[name] = p
	}

	r.mu.Lock()
	previous := r.providers
	r.providers = next
	r.mu.Unlock()

	var errs []error
	for name, p := range previous {
		if next[name] == p {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing datasource %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing replaced datasources: %v", errs)
	}
	return nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, provider := range r.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing datasource %s: %w", name, err))
		}
	}

	r.providers = make(map[string]Provider)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing datasources: %v", errs)
	}

	return nil
}

// ListPrototypes returns the registered provider types, sorted.
func (r *Registry) ListPrototypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.prototypes))
	for name := range r.prototypes {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
