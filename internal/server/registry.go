package server

import (
	"context"
	"sync"
)

// Registry tracks in-flight requests so they can be aborted by id. All
// mutation happens under one lock; handlers only ever see their own
// entry.
type Registry struct {
	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]context.CancelFunc)}
}

// Insert records a request's cancel function under its id.
func (r *Registry) Insert(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = cancel
}

// Remove drops the entry without firing it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Cancel fires and removes the entry. It reports whether the id was
// known.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Len returns the number of in-flight requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
