// Package registry names the programs a weft binary can serve.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/weft"
)

// Factory builds a fresh program. Programs hold process trees that an
// interpreter copies per session, but each interpreter gets its own tree.
type Factory func() weft.Program

// Registry manages the available programs.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		programs: make(map[string]Factory),
	}
}

// Register adds a program to the registry.
// If a program with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[name] = fn
}

// Program looks up a program by name and builds it.
// Returns an error if the program is not found.
func (r *Registry) Program(name string) (weft.Program, error) {
	r.mu.RLock()
	fn, ok := r.programs[name]
	r.mu.RUnlock()

	if !ok {
		return weft.Program{}, fmt.Errorf("program not found: %s", name)
	}

	program := fn()
	if program.Name == "" {
		program.Name = name
	}
	return program, nil
}

// Names returns the registered program names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
