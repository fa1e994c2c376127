package core

import (
	"context"

	"github.com/rs/zerolog"
)

// TypingSignal relays typing notifications to the other members of a chat.
// It keeps no state; receivers expire the indicator after TypingExpiry.
type TypingSignal struct {
	members *MembershipCache
	router  *RoomRouter
	log     *zerolog.Logger
}

func newTypingSignal(members *MembershipCache, router *RoomRouter, logger *zerolog.Logger) *TypingSignal {
	return &TypingSignal{members: members, router: router, log: logger}
}

// Relay forwards a typing notification from senderID, never back to senderID.
func (t *TypingSignal) Relay(ctx context.Context, senderID, chatID string) (int, error) {
	if chatID == "" {
		return 0, validationError("chat id is required")
	}
	members, err := t.members.MembersOf(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if !members.Has(senderID) {
		return 0, authorizationError(chatID)
	}
	ev := &Event{
		Kind:   EventStartedTyping,
		ChatID: chatID,
		Typing: Typing{ChatID: chatID, SenderID: senderID, Expiry: TypingExpiry},
	}
	return t.router.DeliverToMembers(members, ev, senderID), nil
}
