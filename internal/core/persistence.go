package core

import (
	"context"

	"github.com/vovakirdan/chatsync/internal/store"
)

// Persistence is the subset of the store the sync layer depends on.
type Persistence interface {
	ListMembers(ctx context.Context, chatID string) ([]string, error)
	CreateMessage(ctx context.Context, msg *store.Message) error
	IncrementUnread(ctx context.Context, chatID string, recipients []string) error
	ClearUnread(ctx context.Context, chatID string) (bool, error)
}

// Authenticator validates identity tokens presented at identify time.
type Authenticator interface {
	ValidateIdentity(ctx context.Context, token string) (string, error)
}
