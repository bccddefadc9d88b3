package crawler

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a crawler that is not logged in yet.
type Factory func() (Crawler, error)

// Registry holds the crawler factories by platform name.
type Registry struct {
	mutex     sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory, platform names must be unique.
func (r *Registry) Register(name string, factory Factory) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("crawler %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// New creates a crawler for the platform or returns an error if the platform
// is not registered.
func (r *Registry) New(name string) (Crawler, error) {
	r.mutex.RLock()
	factory, ok := r.factories[name]
	r.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown crawler: %s", name)
	}
	return factory()
}

func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
