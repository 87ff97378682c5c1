package llm

import "fmt"

// Registry holds the configured providers. Provider selection is a runtime
// parameter; call sites never branch on provider id.
type Registry struct {
	providers map[string]Provider
	order     []string
	defaultID string
}

// NewRegistry builds a registry from providers in configuration order. The
// first provider is the default unless defaultID names another one.
func NewRegistry(providers []Provider, defaultID string) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		id := p.Descriptor().ID
		if _, dup := r.providers[id]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", id)
		}
		r.providers[id] = p
		r.order = append(r.order, id)
	}

	if defaultID == "" {
		defaultID = r.order[0]
	}
	if _, ok := r.providers[defaultID]; !ok {
		return nil, fmt.Errorf("default provider %q not configured", defaultID)
	}
	r.defaultID = defaultID
	return r, nil
}

// Get returns the provider for id, falling back to the default when id is
// empty or unknown.
func (r *Registry) Get(id string) Provider {
	if p, ok := r.providers[id]; ok {
		return p
	}
	return r.providers[r.defaultID]
}

// DefaultID returns the default provider id.
func (r *Registry) DefaultID() string { return r.defaultID }

// Descriptors lists the configured providers in configuration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id].Descriptor())
	}
	return out
}
