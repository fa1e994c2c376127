package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested chat or message does not exist.
var ErrNotFound = errors.New("not found")

// Chat represents a persisted conversation.
type Chat struct {
	ID      string
	Name    string
	IsGroup bool
	Members []string
	// UnreadCount is shared by all members of the chat.
	UnreadCount   int
	LastMessageID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Text      string
	Image     string
	Read      bool
	CreatedAt time.Time
}

// ChatStore handles chat and membership persistence.
type ChatStore interface {
	// CreateChat persists a chat with its members. An empty ID is assigned.
	CreateChat(ctx context.Context, chat *Chat) error

	// GetChat retrieves a chat with its members.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// ListChats lists chats the user is a member of, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]*Chat, error)

	// ListMembers returns the member ids of a chat.
	// Returns ErrNotFound if the chat does not exist.
	ListMembers(ctx context.Context, chatID string) ([]string, error)

	// AddMember adds a user to a chat. Adding an existing member is a no-op.
	AddMember(ctx context.Context, chatID, userID string) error

	// RemoveMember removes a user from a chat.
	RemoveMember(ctx context.Context, chatID, userID string) error

	// IncrementUnread bumps the unread state of a chat for the given recipients.
	IncrementUnread(ctx context.Context, chatID string, recipients []string) error

	// ClearUnread resets the chat's unread counter and marks its unread messages read.
	// Reports whether anything changed.
	ClearUnread(ctx context.Context, chatID string) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and assigns its durable ID and CreatedAt.
	// Returns ErrNotFound if the chat does not exist.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListMessages retrieves messages of a chat in send order.
	// If beforeID is provided, returns messages older than that ID, or
	// ErrNotFound when it is not a message of the chat.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, chatID string, limit int, beforeID *string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
