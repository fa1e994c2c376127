package core

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/metrics"
)

// PresenceTracker derives the online-user set from the registry and
// broadcasts the full snapshot to every live connection when it changes.
type PresenceTracker struct {
	registry *ConnectionRegistry
	metrics  *metrics.Recorder
	log      *zerolog.Logger

	// mu serializes snapshot computation and broadcast so the last
	// broadcast always carries the newest state.
	mu   sync.Mutex
	last []string
}

// NewPresenceTracker subscribes to registry transitions.
func NewPresenceTracker(registry *ConnectionRegistry, rec *metrics.Recorder, logger *zerolog.Logger) *PresenceTracker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	p := &PresenceTracker{
		registry: registry,
		metrics:  rec,
		log:      logger,
		last:     []string{},
	}
	registry.Observe(p.onTransition)
	return p
}

func (p *PresenceTracker) onTransition(t PresenceTransition) {
	p.log.Debug().Str("user_id", t.UserID).Bool("online", t.Online).Msg("presence transition")
	p.Flush()
}

// Flush recomputes the snapshot and broadcasts it if it differs from the
// last one sent. Returns whether a broadcast happened.
func (p *PresenceTracker) Flush() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := p.registry.OnlineUsers()
	p.metrics.SetConnections(p.registry.Len())
	if slices.Equal(users, p.last) {
		return false
	}
	p.last = users
	p.metrics.SetOnlineUsers(len(users))

	ev := presenceEvent(EventOnlineUsersUpdated, users)
	for _, conn := range p.registry.Connections() {
		if conn.Send(ev) {
			p.metrics.Delivered(ev.Kind.String())
		} else {
			p.metrics.Dropped(ev.Kind.String())
		}
	}
	return true
}

// Snapshot returns the current online users, sorted.
func (p *PresenceTracker) Snapshot() []string {
	return p.registry.OnlineUsers()
}

// IsOnline reports whether the user has any live connection.
func (p *PresenceTracker) IsOnline(userID string) bool {
	return p.registry.IsOnline(userID)
}
