package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandIdentify authenticates the connection (join-room).
	CommandIdentify CommandKind = iota
	// CommandLogin requests the current presence snapshot (user-login).
	CommandLogin
	// CommandSendMessage delivers a chat message to chat members.
	CommandSendMessage
	// CommandClearUnread resets a chat's unread state.
	CommandClearUnread
	// CommandTyping relays a typing notification.
	CommandTyping
)

func (k CommandKind) String() string {
	switch k {
	case CommandIdentify:
		return "join-room"
	case CommandLogin:
		return "user-login"
	case CommandSendMessage:
		return "send-message"
	case CommandClearUnread:
		return "clear-unread-messages"
	case CommandTyping:
		return "user-typing"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a connection.
type Command struct {
	Kind CommandKind
	// UserID is the identity claimed by the payload. For identify it is checked
	// against the token; for other kinds it must match the connection's user.
	UserID  string
	Token   string
	ChatID  string
	Message Message
}
