package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxlift/voxlift/pkg/provider"
)

// ErrProviderNotRegistered is returned by [Registry.CreateEngine] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps engine names to their constructor functions. It is safe for
// concurrent use.
//
// Factories return [provider.Info]; callers select the streaming, batch, or
// synthesis face of the engine via [provider.Has] and a type assertion. A
// single registry covers both pipeline directions because one engine may
// serve both — the browser bridge both streams recognition and speaks.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]func(ProviderEntry) (provider.Info, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]func(ProviderEntry) (provider.Info, error)),
	}
}

// RegisterEngine registers an engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name string, factory func(ProviderEntry) (provider.Info, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// CreateEngine instantiates an engine using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateEngine(entry ProviderEntry) (provider.Info, error) {
	r.mu.RLock()
	factory, ok := r.engines[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
