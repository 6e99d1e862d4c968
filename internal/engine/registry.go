package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnknownBuilder is returned by Registry.Create for unregistered names.
var ErrUnknownBuilder = errors.New("unknown builder")

// Constructor creates a fresh Builder instance.
type Constructor func() (Builder, error)

// Registry is a BuilderFactory backed by registered constructors.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor under name. Names are unique.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" {
		return fmt.Errorf("register builder: name is required")
	}
	if ctor == nil {
		return fmt.Errorf("register builder %q: constructor is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("register builder %q: already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// RegisterBuilder registers a shared builder instance under its meta name.
// Builders registered this way must be stateless.
func (r *Registry) RegisterBuilder(b Builder) error {
	return r.Register(b.Meta().Name, func() (Builder, error) { return b, nil })
}

// Create implements BuilderFactory.
func (r *Registry) Create(name string) (Builder, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuilder, name)
	}
	b, err := ctor()
	if err != nil {
		return nil, fmt.Errorf("construct builder %q: %w", name, err)
	}
	if b == nil {
		return nil, fmt.Errorf("construct builder %q: constructor returned nil", name)
	}
	return b, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
