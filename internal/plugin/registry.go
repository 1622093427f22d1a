package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps step kinds to their plugin implementations.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin keyed by the kind it reports in its metadata.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin cannot be nil")
	}

	kind := p.Metadata().Kind
	if kind == "" {
		return fmt.Errorf("plugin metadata must declare a kind")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[kind]; exists {
		return fmt.Errorf("plugin for kind %q already registered", kind)
	}

	r.plugins[kind] = p
	return nil
}

// Get returns the plugin registered for kind.
func (r *Registry) Get(kind string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[kind]
	if !ok {
		return nil, fmt.Errorf("no plugin registered for kind %q", kind)
	}
	return p, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.plugins))
	for kind := range r.plugins {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
