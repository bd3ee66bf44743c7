package core

import (
	"fmt"
	"sync"
)

// DescribeFunc renders a one-line human-readable summary of an invocation
// from its raw parameters.
type DescribeFunc func(params any) string

type registryEntry struct {
	factory  func() any // returns Task or paramTask
	describe DescribeFunc
}

// Registry maps task names to their implementations. It is populated once at
// startup and treated as closed afterwards; resolving an unknown name is a
// distinguishable failure, not a panic.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry returns a registry preloaded with the built-in populate task.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]registryEntry)}
	registerPopulate(r)
	return r
}

// Register adds a parameterless task under name. Registering a duplicate
// name is a programming error.
func (r *Registry) Register(name string, describe DescribeFunc, factory func() Task) {
	r.add(name, describe, func() any { return factory() })
}

// RegisterWithParams adds a parameterized task under name, erasing the
// parameter type behind the runner's capability interface.
func RegisterWithParams[P any](r *Registry, name string, describe DescribeFunc, factory func() TaskWithParams[P]) {
	r.add(name, describe, func() any { return paramAdapter[P]{task: factory()} })
}

func (r *Registry) add(name string, describe DescribeFunc, factory func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("task %q registered twice", name))
	}
	if describe == nil {
		describe = func(any) string { return name }
	}
	r.entries[name] = registryEntry{factory: factory, describe: describe}
}

func (r *Registry) lookup(name string) (registryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// Describe returns the one-line description for a named task, or an empty
// string when the name is unknown.
func (r *Registry) Describe(name string, params any) string {
	entry, ok := r.lookup(name)
	if !ok {
		return ""
	}
	return entry.describe(params)
}

// Names returns all registered task names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
