package provider

import (
	"fmt"
	"sort"
	"sync"
)

// registryEntry pairs a provider's declared metadata with the factory that builds it.
type registryEntry struct {
	metadata Metadata
	factory  Factory
	order    int // registration order, used as the final tiebreaker during selection
}

// Registry is the boot-time catalog of providers per domain. It is
// built once at startup by the composition root; registration after providers start
// being created is not supported (there is no remove).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[string]*registryEntry // domain -> providerName -> entry
	seq     int
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]map[string]*registryEntry)}
}

// Register adds a provider factory under metadata.Domain/metadata.Name. Fails if that
// pair is already registered.
func (r *Registry) Register(metadata Metadata, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.entries[metadata.Domain]
	if !ok {
		byName = make(map[string]*registryEntry)
		r.entries[metadata.Domain] = byName
	}
	if _, exists := byName[metadata.Name]; exists {
		return fmt.Errorf("provider %q already registered for domain %q", metadata.Name, metadata.Domain)
	}

	r.seq++
	byName[metadata.Name] = &registryEntry{metadata: metadata, factory: factory, order: r.seq}
	return nil
}

// CreateDefaultConfig synthesizes a Config from the registered provider's metadata.
func (r *Registry) CreateDefaultConfig(domainName, name string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, err := r.lookup(domainName, name)
	if err != nil {
		return Config{}, err
	}
	cfg := entry.metadata.DefaultConfig
	if cfg.BaseURL == "" {
		cfg.BaseURL = entry.metadata.BaseURL
	}
	return cfg, nil
}

// CreateProvidersForDomain instantiates every provider registered for domainName, in
// registration order, or just the preferred one if preferredProvider is non-empty and
// registered for that domain.
func (r *Registry) CreateProvidersForDomain(domainName, preferredProvider string) ([]Provider, error) {
	r.mu.RLock()
	byName, ok := r.entries[domainName]
	if !ok || len(byName) == 0 {
		r.mu.RUnlock()
		return nil, nil
	}
	entries := make([]*registryEntry, 0, len(byName))
	for _, e := range byName {
		if preferredProvider != "" && e.metadata.Name != preferredProvider {
			continue
		}
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

	providers := make([]Provider, 0, len(entries))
	for _, e := range entries {
		cfg := e.metadata.DefaultConfig
		if cfg.BaseURL == "" {
			cfg.BaseURL = e.metadata.BaseURL
		}
		p, err := e.factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to construct provider %q for domain %q: %w", e.metadata.Name, domainName, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// Metadata returns the registered metadata for domain/name.
func (r *Registry) Metadata(domainName, name string) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, err := r.lookup(domainName, name)
	if err != nil {
		return Metadata{}, err
	}
	return entry.metadata, nil
}

func (r *Registry) lookup(domainName, name string) (*registryEntry, error) {
	byName, ok := r.entries[domainName]
	if !ok {
		return nil, fmt.Errorf("no providers registered for domain %q", domainName)
	}
	entry, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered for domain %q", name, domainName)
	}
	return entry, nil
}
