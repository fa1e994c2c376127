package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoinRoom    = "join-room"
	InboundTypeUserLogin   = "user-login"
	InboundTypeSendMessage = "send-message"
	InboundTypeClearUnread = "clear-unread-messages"
	InboundTypeUserTyping  = "user-typing"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventOnlineUsers         = "online-users"
	EventOnlineUsersUpdated  = "online-users-updated"
	EventReceiveMessage      = "receive-message"
	EventMessageCountCleared = "message-count-cleared"
	EventStartedTyping       = "started-typing"
)

// JoinRoomData identifies the connection.
type JoinRoomData struct {
	UserID   string `json:"userId"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// UserLoginData requests the presence snapshot.
type UserLoginData struct {
	UserID string `json:"userId"`
}

// SendMessageData is a chat message from the client. Members is accepted for
// compatibility and ignored; recipients come from persisted membership.
type SendMessageData struct {
	ChatID  string   `json:"chatId"`
	Sender  string   `json:"sender"`
	Text    string   `json:"text,omitempty"`
	Image   string   `json:"image,omitempty"`
	Members []string `json:"members,omitempty"`
}

// ClearUnreadData resets a chat's unread state.
type ClearUnreadData struct {
	ChatID  string   `json:"chatId"`
	Members []string `json:"members,omitempty"`
}

// UserTypingData is a typing notification.
type UserTypingData struct {
	ChatID  string   `json:"chatId"`
	Sender  string   `json:"sender"`
	Members []string `json:"members,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage is a persisted chat message.
type EventMessage struct {
	ID        string `json:"_id"`
	ChatID    string `json:"chatId"`
	Sender    string `json:"sender"`
	Text      string `json:"text,omitempty"`
	Image     string `json:"image,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	Read      bool   `json:"read"`
}

// ChatRef identifies a chat.
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// EventTyping notifies that a member is typing.
type EventTyping struct {
	ChatID      string `json:"chatId"`
	Sender      string `json:"sender"`
	ExpiresInMs int64  `json:"expiresInMs"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
