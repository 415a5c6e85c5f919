package session

import (
	"sync"
	"time"
)

// EvictFunc is invoked for every session removed by the sweeper, after it
// has left the registry. It runs on the sweeper goroutine and must not call
// back into the registry's blocking operations.
type EvictFunc func(id string, snap Snapshot)

// Registry owns all live sessions, keyed by principal identifier. At most
// one session exists per identifier; Create unconditionally replaces any
// prior entry (deciding whether replacement is appropriate is the Engine's
// job, via Find plus a freshness check).
//
// All map mutations — Create, Find, and sweeper-driven removal — are
// serialized behind one mutex, so a concurrent reader never observes a
// partially constructed session and the sweeper never iterates a map that is
// being written.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl      time.Duration
	interval time.Duration
	onEvict  EvictFunc

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRegistry creates a registry and starts its background sweeper. Sessions
// whose last phase transition is older than ttl are removed on the next
// sweep tick. onEvict may be nil.
func NewRegistry(ttl, sweepInterval time.Duration, onEvict EvictFunc) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		interval: sweepInterval,
		onEvict:  onEvict,
		done:     make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

func (r *Registry) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.sweep(now)
		case <-r.done:
			return
		}
	}
}

// sweep removes every session idle beyond the TTL. Collect and delete happen
// in one critical section; evict callbacks run after the lock is released.
func (r *Registry) sweep(now time.Time) {
	type evicted struct {
		id   string
		snap Snapshot
	}
	var expired []evicted

	r.mu.Lock()
	for id, sess := range r.sessions {
		snap := sess.Snapshot()
		if now.Sub(snap.LastUpdated) > r.ttl {
			delete(r.sessions, id)
			expired = append(expired, evicted{id: id, snap: snap})
		}
	}
	r.mu.Unlock()

	if r.onEvict == nil {
		return
	}
	for _, e := range expired {
		r.onEvict(e.id, e.snap)
	}
}

// Create stores a fresh PhaseInit session for id, overwriting any prior
// entry, and returns it.
func (r *Registry) Create(id string) *Session {
	sess := New(id)

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	return sess
}

// Find returns the live session for id, if any.
func (r *Registry) Find(id string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	return sess, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the sweeper and waits for it to exit. Sessions already in the
// registry remain readable; Close is idempotent.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}
