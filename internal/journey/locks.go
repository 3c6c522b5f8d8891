package journey

import "sync"

// lockRegistry hands out non-blocking per-journey exclusivity. A second
// concurrent acquire on the same id fails immediately instead of queueing,
// which is what surfaces ConcurrentModification to the caller.
type lockRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{held: make(map[string]struct{})}
}

// acquire reports whether the id was free and is now held by the caller.
func (r *lockRegistry) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.held[id]; taken {
		return false
	}
	r.held[id] = struct{}{}
	return true
}

func (r *lockRegistry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, id)
}
