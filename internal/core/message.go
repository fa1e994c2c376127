package core

import "time"

// TypingExpiry is how long a receiver shows a typing indicator without renewal.
const TypingExpiry = 2 * time.Second

// Message is the envelope of a chat message. ID is empty until persistence
// accepts the message.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Text      string
	Image     string
	Read      bool
	CreatedAt time.Time
}

// Typing is an ephemeral typing notification. It is never persisted.
type Typing struct {
	ChatID   string
	SenderID string
	Expiry   time.Duration
}

// ReadReceipt describes the outcome of clearing a chat's unread state.
type ReadReceipt struct {
	ChatID string
	// Changed is false when the chat was already fully read.
	Changed bool
}
