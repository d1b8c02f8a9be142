package runner

import (
	"fmt"
	"sync"

	"github.com/collegemedia/jobrunner/internal/executor"
)

// Registry maps job names to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]executor.Operation
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]executor.Operation)}
}

// Register binds a handler to a job name. Registering the same name twice
// is a programming error.
func (r *Registry) Register(name string, op executor.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler %q already registered", name)
	}
	r.handlers[name] = op
	return nil
}

// Get returns the handler for a job name.
func (r *Registry) Get(name string) (executor.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.handlers[name]
	return op, ok
}

// Names returns all registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
