// Package registry maps plugin keys to constructors. Registration order is kept so that
// teardown runs deterministically.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknown indicates no constructor is registered under the requested key.
var ErrUnknown = errors.New("unknown plugin")

// Factory builds a plugin instance.
type Factory[T any] func() T

// Registry is a concurrency-safe ordered map of factories.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
	order     []string
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]Factory[T])}
}

// Register adds factory under name. Re-registering replaces the factory and keeps the
// original position.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = factory
}

// Get builds the plugin registered under name.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return factory(), nil
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists keys in registration order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All builds every registered plugin in registration order.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.factories[name]())
	}
	return out
}
