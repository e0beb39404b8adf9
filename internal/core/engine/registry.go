package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the server's authoritative table of open connections.
// Ids come from a monotonically increasing counter and are never reused
// for the lifetime of the process. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	conns    map[uint64]*Conn
	nextID   uint64
	capacity int
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		conns:    make(map[uint64]*Conn),
		capacity: capacity,
	}
}

// Insert assigns the next id to the connection and registers it.
// Returns ErrMaxClientsReached when the registry is at capacity,
// leaving existing connections untouched.
func (r *Registry) Insert(c *Conn) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) >= r.capacity {
		return 0, fmt.Errorf("%w: %d", ErrMaxClientsReached, r.capacity)
	}

	r.nextID++
	c.id = r.nextID
	r.conns[c.id] = c
	return c.id, nil
}

// Remove deletes a connection; reports whether it was present.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.conns[id]
	delete(r.conns, id)
	return ok
}

// Get looks up a connection by id.
func (r *Registry) Get(id uint64) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	return c, ok
}

// Snapshot returns the registered connections in ascending id order,
// for broadcast fan-out.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })
	return conns
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SetCapacity adjusts the cap. Shrinking below the current count does
// not evict anyone; it only refuses new insertions.
func (r *Registry) SetCapacity(n int) {
	r.mu.Lock()
	r.capacity = n
	r.mu.Unlock()
}

// Capacity returns the configured cap.
func (r *Registry) Capacity() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capacity
}
