package core

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventOnlineUsers delivers the presence snapshot to a newly identified connection.
	EventOnlineUsers EventKind = iota
	// EventOnlineUsersUpdated broadcasts the presence snapshot after a transition.
	EventOnlineUsersUpdated
	// EventReceiveMessage delivers a persisted chat message.
	EventReceiveMessage
	// EventMessageCountCleared notifies that a chat's unread state was reset.
	EventMessageCountCleared
	// EventStartedTyping relays a typing notification.
	EventStartedTyping
	// EventError notifies the originating connection about a failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOnlineUsers:
		return "online-users"
	case EventOnlineUsersUpdated:
		return "online-users-updated"
	case EventReceiveMessage:
		return "receive-message"
	case EventMessageCountCleared:
		return "message-count-cleared"
	case EventStartedTyping:
		return "started-typing"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to connections to describe what happened in the system.
// Events are shared between recipients and must not be mutated after delivery.
type Event struct {
	Kind    EventKind
	ChatID  string
	Users   []string // presence snapshot
	Message Message
	Typing  Typing
	Error   *CoreError
}

func presenceEvent(kind EventKind, users []string) *Event {
	return &Event{Kind: kind, Users: users}
}

func errorEvent(err error) *Event {
	return &Event{Kind: EventError, Error: AsCoreError(err)}
}
