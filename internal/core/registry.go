package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// PresenceTransition is emitted when a user's connection set becomes
// non-empty (Online) or empty (!Online).
type PresenceTransition struct {
	UserID string
	ConnID uint64
	Online bool
}

// ConnectionRegistry maps users to their live connections.
// Identifiers are monotonic and never reused, so a late unregister of an old
// connection can never remove a newer one.
type ConnectionRegistry struct {
	mu        sync.RWMutex
	nextID    uint64
	byID      map[uint64]*Connection
	byUser    map[string]map[uint64]*Connection
	closed    bool
	observers []func(PresenceTransition)
	log       *zerolog.Logger
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry(logger *zerolog.Logger) *ConnectionRegistry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ConnectionRegistry{
		byID:   make(map[uint64]*Connection),
		byUser: make(map[string]map[uint64]*Connection),
		log:    logger,
	}
}

// Observe registers fn for presence transitions. fn runs outside the registry
// lock and must not block.
func (r *ConnectionRegistry) Observe(fn func(PresenceTransition)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Register adds conn to the user's connection set and returns its identifier.
// Registering the same connection again returns the existing identifier.
func (r *ConnectionRegistry) Register(userID string, conn *Connection) (uint64, error) {
	if userID == "" {
		return 0, validationError("user id is required")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrRegistryClosed
	}
	if id := conn.ID(); id != 0 {
		existing, ok := r.byID[id]
		r.mu.Unlock()
		if ok && existing == conn && conn.UserID() == userID {
			return id, nil
		}
		return 0, fmt.Errorf("connection %d already bound to another identity", id)
	}

	id := r.nextID + 1
	if err := conn.authenticate(id, userID); err != nil {
		r.mu.Unlock()
		return 0, err
	}
	r.nextID = id
	r.byID[id] = conn
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[uint64]*Connection)
		r.byUser[userID] = set
	}
	set[id] = conn
	becameOnline := len(set) == 1
	observers := r.observers
	r.mu.Unlock()

	r.log.Debug().Uint64("conn_id", id).Str("user_id", userID).Msg("connection registered")
	if becameOnline {
		r.notify(observers, PresenceTransition{UserID: userID, ConnID: id, Online: true})
	}
	return id, nil
}

// Unregister removes a connection. Unknown or already removed identifiers
// are a no-op and return false.
func (r *ConnectionRegistry) Unregister(connID uint64) bool {
	r.mu.Lock()
	conn, ok := r.byID[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, connID)
	userID := conn.UserID()
	becameOffline := false
	if set, ok := r.byUser[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, userID)
			becameOffline = true
		}
	}
	observers := r.observers
	r.mu.Unlock()

	r.log.Debug().Uint64("conn_id", connID).Str("user_id", userID).Msg("connection unregistered")
	if becameOffline {
		r.notify(observers, PresenceTransition{UserID: userID, ConnID: connID, Online: false})
	}
	return true
}

// ConnectionsOf returns a snapshot of the user's live connections.
func (r *ConnectionRegistry) ConnectionsOf(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Connection, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID() < conns[j].ID() })
	return conns
}

// ConnectionCount returns how many live connections the user has.
func (r *ConnectionRegistry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// IsOnline reports whether the user has at least one live connection.
func (r *ConnectionRegistry) IsOnline(userID string) bool {
	return r.ConnectionCount(userID) > 0
}

// OnlineUsers returns the sorted ids of users with at least one live connection.
func (r *ConnectionRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Connections returns a snapshot of every live connection.
func (r *ConnectionRegistry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of live connections.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Drain closes the registry and every live connection. Later registrations
// fail with ErrRegistryClosed. Returns how many connections were closed.
func (r *ConnectionRegistry) Drain() int {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	r.byID = make(map[uint64]*Connection)
	r.byUser = make(map[string]map[uint64]*Connection)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

func (r *ConnectionRegistry) notify(observers []func(PresenceTransition), t PresenceTransition) {
	for _, fn := range observers {
		fn(t)
	}
}
