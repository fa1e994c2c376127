package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/store"
)

// ReadReceiptCoordinator resets a chat's unread state and re-synchronizes
// every device of every member.
type ReadReceiptCoordinator struct {
	store          Persistence
	members        *MembershipCache
	router         *RoomRouter
	seq            *chatSequencer
	persistTimeout time.Duration
	log            *zerolog.Logger
}

func newReadReceiptCoordinator(st Persistence, members *MembershipCache, router *RoomRouter, seq *chatSequencer, opts Options, logger *zerolog.Logger) *ReadReceiptCoordinator {
	return &ReadReceiptCoordinator{
		store:          st,
		members:        members,
		router:         router,
		seq:            seq,
		persistTimeout: opts.PersistTimeout,
		log:            logger,
	}
}

// Clear resets the unread state of chatID on behalf of userID. Clearing an
// already read chat succeeds with Changed=false and still notifies members.
func (r *ReadReceiptCoordinator) Clear(ctx context.Context, userID, chatID string) (ReadReceipt, error) {
	if chatID == "" {
		return ReadReceipt{}, validationError("chat id is required")
	}
	members, err := r.members.MembersOf(ctx, chatID)
	if err != nil {
		return ReadReceipt{}, err
	}
	if !members.Has(userID) {
		return ReadReceipt{}, authorizationError(chatID)
	}

	// Shares the chat lock with sends so a clear never lands between a
	// message's unread increment and its delivery.
	release := r.seq.lock(chatID)
	defer release()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()

	changed, err := r.store.ClearUnread(pctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.members.Invalidate(chatID)
			return ReadReceipt{}, chatNotFoundError(chatID)
		}
		r.log.Error().Err(err).Str("chat_id", chatID).Str("user_id", userID).Msg("clear unread")
		return ReadReceipt{}, persistenceError("clear unread", err)
	}

	receipt := ReadReceipt{ChatID: chatID, Changed: changed}
	n := r.router.DeliverToMembers(members, &Event{Kind: EventMessageCountCleared, ChatID: chatID}, "")
	r.log.Debug().
		Str("chat_id", chatID).
		Str("user_id", userID).
		Bool("changed", changed).
		Int("connections", n).
		Msg("unread cleared")
	return receipt, nil
}
