package autosave

import (
	"sync"

	"github.com/kalmarr/matrixcbs/internal/model"
)

// Registry owns the live coordinators, one per open editing session.
type Registry struct {
	store  Store
	opts   Options
	notify Notifier

	mu     sync.Mutex
	coords map[model.DraftKey]*Coordinator
}

func NewRegistry(store Store, opts Options, notify Notifier) *Registry {
	return &Registry{
		store:  store,
		opts:   opts,
		notify: notify,
		coords: make(map[model.DraftKey]*Coordinator),
	}
}

// Get returns the coordinator for key, creating it on first use.
func (r *Registry) Get(key model.DraftKey) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.coords[key]; ok {
		return c
	}
	c := NewCoordinator(key, r.store, r.opts, r.notify)
	r.coords[key] = c
	return c
}

// Lookup returns the coordinator for key if one is live.
func (r *Registry) Lookup(key model.DraftKey) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coords[key]
	return c, ok
}

// Close tears down and forgets the coordinator for key.
func (r *Registry) Close(key model.DraftKey) {
	r.mu.Lock()
	c, ok := r.coords[key]
	delete(r.coords, key)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Shutdown closes every live coordinator.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	coords := r.coords
	r.coords = make(map[model.DraftKey]*Coordinator)
	r.mu.Unlock()

	for _, c := range coords {
		c.Close()
	}
}
