package queue

import (
	"sort"
	"sync"
)

// Registry tracks named queue managers so the composition root can look
// them up and stop them together during shutdown. It replaces any notion
// of package-level manager state; the root owns the registry and decides
// its lifetime.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

// Register stores a manager under name, replacing any previous entry.
func (r *Registry) Register(name string, m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[name] = m
}

// Get returns the manager registered under name, or nil.
func (r *Registry) Get(name string) *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.managers[name]
}

// Names returns the registered manager names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.managers))
	for name := range r.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll stops every registered manager and waits for their workers to
// finish. Safe to call more than once.
func (r *Registry) StopAll() {
	r.mu.RLock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.RUnlock()

	for _, m := range managers {
		m.Stop()
	}
}
