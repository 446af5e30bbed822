package presence

import (
	"sort"
	"sync"
	"time"

	"plaza/server/internal/proto"
)

// Conn is the write side of a live client connection. Implementations must be
// safe for concurrent writes; the hub never serializes calls itself.
type Conn interface {
	Write(data []byte) error
	Close() error
}

type entry struct {
	state    proto.PlayerState
	conn     Conn
	joinedAt time.Time
	lastSeen time.Time
}

// Registry maps each userID to its live connection and last accepted state.
// It is the only shared mutable resource in the subsystem and is safe for
// concurrent use from any number of connection handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register binds a connection to a userID. A second registration for the same
// id supersedes the first: the previous connection is returned so the caller
// can close it, and the previously accepted state is retained for reconnects.
func (r *Registry) Register(userID string, conn Conn, state proto.PlayerState, now time.Time) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[userID]; ok {
		old := existing.conn
		existing.conn = conn
		existing.lastSeen = now
		return old, true
	}

	r.entries[userID] = &entry{state: state, conn: conn, joinedAt: now, lastSeen: now}
	return nil, false
}

// Unregister removes a userID. Removing an absent id is a no-op. A non-nil
// conn makes the removal conditional: if the registry holds a different
// connection the id was superseded and the stale caller must not unregister it.
func (r *Registry) Unregister(userID string, conn Conn) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	if conn != nil && existing.conn != conn {
		return nil, false
	}
	delete(r.entries, userID)
	return existing.conn, true
}

// SetState stores the latest accepted state for a registered user.
func (r *Registry) SetState(userID string, state proto.PlayerState, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[userID]
	if !ok {
		return false
	}
	existing.state = state
	existing.lastSeen = now
	return true
}

// Get returns the last accepted state for a user.
func (r *Registry) Get(userID string) (proto.PlayerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.entries[userID]
	if !ok {
		return proto.PlayerState{}, false
	}
	return existing.state, true
}

// States copies every live state. The copy is taken under the read lock so
// writers are only blocked for the duration of the copy itself.
func (r *Registry) States() []proto.PlayerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]proto.PlayerState, 0, len(r.entries))
	for _, e := range r.entries {
		states = append(states, e.state)
	}
	return states
}

// IDs returns the sorted roster of registered identities.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Conns snapshots the live connections keyed by userID for fan-out.
func (r *Registry) Conns() map[string]Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make(map[string]Conn, len(r.entries))
	for id, e := range r.entries {
		conns[id] = e.conn
	}
	return conns
}

// ConnOf returns the live connection for a single user.
func (r *Registry) ConnOf(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return existing.conn, true
}

type livenessEntry struct {
	ID       string `json:"id"`
	JoinedAt int64  `json:"joinedAt"`
	LastSeen int64  `json:"lastSeen"`
}

// Liveness exposes per-user timing data for the diagnostics endpoint.
func (r *Registry) Liveness() []livenessEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]livenessEntry, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, livenessEntry{
			ID:       id,
			JoinedAt: e.joinedAt.UnixMilli(),
			LastSeen: e.lastSeen.UnixMilli(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
