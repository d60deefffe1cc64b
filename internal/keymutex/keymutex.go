// Package keymutex provides mutual exclusion per string key.
//
// Locks are created on first use and released when no goroutine holds or
// waits for them, so the registry does not grow with the number of keys
// ever seen.
package keymutex

import (
	"context"
	"sync"
)

type entry struct {
	// sem holds one token while the key is unlocked.
	sem  chan struct{}
	refs int
}

// Registry hands out per-key locks.
//
// Thread-safety: All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) acquire(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		e.sem <- struct{}{}
		r.entries[key] = e
	}
	e.refs++
	return e
}

func (r *Registry) release(key string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(r.entries, key)
	}
}

// Lock blocks until the key is held or ctx is done. On success the returned
// function unlocks the key and must be called exactly once.
func (r *Registry) Lock(ctx context.Context, key string) (func(), error) {
	e := r.acquire(key)
	select {
	case <-e.sem:
	case <-ctx.Done():
		r.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem <- struct{}{}
			r.release(key, e)
		})
	}, nil
}

// Len returns the number of keys currently held or waited on.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
