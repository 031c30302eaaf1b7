package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps vendor keys to their Provider implementations. Registration
// happens once at startup; duplicate keys are a configuration error rather
// than a silent override.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register associates a vendor key with a provider. Returns an error if the
// key is already taken.
func (r *Registry) Register(vendor string, p Provider) error {
	if vendor == "" {
		return fmt.Errorf("provider registration: empty vendor key")
	}
	if p == nil {
		return fmt.Errorf("provider registration: nil provider for vendor %q", vendor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[vendor]; exists {
		return fmt.Errorf("provider registration: vendor %q already registered", vendor)
	}

	r.providers[vendor] = p
	return nil
}

// Resolve returns the provider for a vendor key, or false if none is
// registered.
func (r *Registry) Resolve(vendor string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[vendor]
	return p, ok
}

// Vendors returns the registered vendor keys in sorted order.
func (r *Registry) Vendors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vendors := make([]string, 0, len(r.providers))
	for v := range r.providers {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	return vendors
}
