// Package provider defines the per-provider capability interfaces and the
// registry that selects an implementation by provider name. The coordinator
// and discovery never branch on provider identity; all provider-specific
// behavior lives behind these interfaces.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/novacat/novacat/pkg/catalog"
)

// DiscoveredRecord is one normalized candidate record from a provider
// query, before identity resolution.
type DiscoveredRecord struct {
	Provider string
	// NativeID is the provider's own identifier for the artifact, when the
	// provider has a reliable one. Takes precedence over the URL for
	// identity derivation.
	NativeID string
	URL      string
	Mirrors  []string
	// Hints carries provenance metadata passed through to validation.
	Hints map[string]string
}

// Acquirer fetches the raw bytes of one product. Implementations report
// failures as *classify.Failure values so the classifier sees a closed
// taxonomy rather than free-form errors. Network I/O is bounded by the
// caller's context.
type Acquirer interface {
	Acquire(ctx context.Context, locators []catalog.Locator) ([]byte, error)
}

// Normalizer converts a provider's raw discovery payload into
// DiscoveredRecords.
type Normalizer interface {
	NormalizeRecord(raw map[string]string) (DiscoveredRecord, error)
}

// Adapter bundles the capabilities of one provider.
type Adapter interface {
	Acquirer
	Normalizer
}

// Registry selects provider adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter for a provider name. Registering the same name
// twice is an error: provider wiring is static, collisions mean misconfiguration.
func (r *Registry) Register(name string, adapter Adapter) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if adapter == nil {
		return fmt.Errorf("adapter for provider %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Get returns the adapter for a provider name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q (known: %v)", name, r.names())
	}
	return adapter, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
