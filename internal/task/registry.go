package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrTaskExists   = errors.New("task already registered")
	ErrTaskNotFound = errors.New("task not found")
)

type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewRegistry returns a registry holding the builtin tasks.
func NewRegistry() *Registry {
	r := &Registry{tasks: make(map[string]Task)}
	for _, t := range Builtins() {
		r.tasks[t.Name()] = t
	}
	return r
}

func (r *Registry) Register(t Task) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("%w: task name is required", ErrInvalidTask)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.Name())
	}
	r.tasks[t.Name()] = t
	return nil
}

func (r *Registry) Get(name string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return t, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
