package provider

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownProvider = errors.New("unknown oauth provider")

// Registry holds all configured OAuth providers and allows
// lookup by registration name. It performs no auth logic itself.
type Registry struct {
	providers map[string]OAuthProvider
	names     []string
}

// NewRegistry registers the given OAuth providers by name.
// Provider names must be unique.
func NewRegistry(list ...OAuthProvider) (*Registry, error) {
	m := make(map[string]OAuthProvider, len(list))
	names := make([]string, 0, len(list))
	for _, p := range list {
		if _, dup := m[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate oauth provider: %s", p.Name())
		}
		m[p.Name()] = p
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return &Registry{providers: m, names: names}, nil
}

// Get returns the OAuth provider by name or ErrUnknownProvider.
func (r *Registry) Get(name string) (OAuthProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registration names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) Len() int {
	return len(r.names)
}
