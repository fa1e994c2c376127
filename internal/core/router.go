package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/metrics"
)

// RoomRouter fans events out to the live connections of a chat's members.
type RoomRouter struct {
	members  *MembershipCache
	registry *ConnectionRegistry
	metrics  *metrics.Recorder
	log      *zerolog.Logger
}

// NewRoomRouter creates a router over the given cache and registry.
func NewRoomRouter(members *MembershipCache, registry *ConnectionRegistry, rec *metrics.Recorder, logger *zerolog.Logger) *RoomRouter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RoomRouter{members: members, registry: registry, metrics: rec, log: logger}
}

// Deliver pushes ev to every live connection of every member of chatID,
// including the sender's other devices. Returns the number of connections
// the event was enqueued to.
func (r *RoomRouter) Deliver(ctx context.Context, chatID string, ev *Event) (int, error) {
	return r.DeliverExcept(ctx, chatID, ev, "")
}

// DeliverExcept is Deliver without the connections of exclude.
func (r *RoomRouter) DeliverExcept(ctx context.Context, chatID string, ev *Event, exclude string) (int, error) {
	members, err := r.members.MembersOf(ctx, chatID)
	if err != nil {
		return 0, err
	}
	return r.DeliverToMembers(members, ev, exclude), nil
}

// DeliverToMembers pushes ev to the live connections of an already resolved
// member set. Each connection receives the event at most once.
func (r *RoomRouter) DeliverToMembers(members Members, ev *Event, exclude string) int {
	delivered := 0
	name := ev.Kind.String()
	for userID := range members {
		if userID == exclude {
			continue
		}
		for _, conn := range r.registry.ConnectionsOf(userID) {
			if conn.Send(ev) {
				delivered++
				r.metrics.Delivered(name)
			} else {
				r.metrics.Dropped(name)
				r.log.Debug().Uint64("conn_id", conn.ID()).Str("user_id", userID).Str("event", name).Msg("delivery dropped")
			}
		}
	}
	return delivered
}
