package connector

import "fmt"

// Registry maps provider keys to connector implementations. Registration
// happens once at process start; after that the registry is only read, so
// resolves need no locking.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: map[string]Connector{}}
}

// Register adds a connector under the given provider key, replacing any
// previous registration. Call only during startup.
func (r *Registry) Register(providerKey string, c Connector) {
	r.connectors[providerKey] = c
}

// Resolve returns the connector for a provider key.
func (r *Registry) Resolve(providerKey string) (Connector, error) {
	c, ok := r.connectors[providerKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerKey)
	}
	return c, nil
}

// Providers lists the registered provider keys.
func (r *Registry) Providers() []string {
	keys := make([]string, 0, len(r.connectors))
	for k := range r.connectors {
		keys = append(keys, k)
	}
	return keys
}
