package core

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/metrics"
	"github.com/vovakirdan/chatsync/internal/store"
)

// MessageDispatcher authorizes, persists and fans out new chat messages.
// Sends to one chat are serialized: persistence, unread bookkeeping and
// fan-out of a message finish before the next message of that chat starts,
// so every recipient observes the same order.
type MessageDispatcher struct {
	store          Persistence
	members        *MembershipCache
	router         *RoomRouter
	seq            *chatSequencer
	persistTimeout time.Duration
	maxTextLength  int
	metrics        *metrics.Recorder
	log            *zerolog.Logger
}

func newMessageDispatcher(st Persistence, members *MembershipCache, router *RoomRouter, seq *chatSequencer, opts Options, rec *metrics.Recorder, logger *zerolog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		store:          st,
		members:        members,
		router:         router,
		seq:            seq,
		persistTimeout: opts.PersistTimeout,
		maxTextLength:  opts.MaxTextLength,
		metrics:        rec,
		log:            logger,
	}
}

func (d *MessageDispatcher) validate(senderID string, msg Message) error {
	if msg.ChatID == "" {
		return validationError("chat id is required")
	}
	if strings.TrimSpace(msg.Text) == "" && msg.Image == "" {
		return validationError("message must have text or image")
	}
	if d.maxTextLength > 0 && utf8.RuneCountInString(msg.Text) > d.maxTextLength {
		return validationError("message text too long")
	}
	if msg.SenderID != "" && msg.SenderID != senderID {
		return validationError("sender does not match connection")
	}
	return nil
}

// Dispatch handles one send request from senderID. The returned message
// carries the durable id. On any error nothing is broadcast.
func (d *MessageDispatcher) Dispatch(ctx context.Context, senderID string, msg Message) (*Message, error) {
	if err := d.validate(senderID, msg); err != nil {
		return nil, err
	}

	members, err := d.members.MembersOf(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}
	if !members.Has(senderID) {
		return nil, authorizationError(msg.ChatID)
	}

	release := d.seq.lock(msg.ChatID)
	defer release()

	// The write outlives a client that disconnects mid-send; a stored
	// message must still be fanned out.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.persistTimeout)
	defer cancel()

	rec := &store.Message{
		ChatID:   msg.ChatID,
		SenderID: senderID,
		Text:     msg.Text,
		Image:    msg.Image,
	}
	if err := d.store.CreateMessage(pctx, rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.members.Invalidate(msg.ChatID)
			return nil, chatNotFoundError(msg.ChatID)
		}
		d.log.Error().Err(err).Str("chat_id", msg.ChatID).Str("user_id", senderID).Msg("persist message")
		return nil, persistenceError("store message", err)
	}
	d.metrics.MessagePersisted()

	final := Message{
		ID:        rec.ID,
		ChatID:    rec.ChatID,
		SenderID:  rec.SenderID,
		Text:      rec.Text,
		Image:     rec.Image,
		Read:      rec.Read,
		CreatedAt: rec.CreatedAt,
	}

	recipients := make([]string, 0, len(members))
	for _, id := range members.IDs() {
		if id != senderID {
			recipients = append(recipients, id)
		}
	}
	if err := d.store.IncrementUnread(pctx, msg.ChatID, recipients); err != nil {
		// The message is durable; its broadcast must not be suppressed.
		d.log.Warn().Err(err).Str("chat_id", msg.ChatID).Str("message_id", final.ID).Msg("increment unread")
	}

	n := d.router.DeliverToMembers(members, &Event{Kind: EventReceiveMessage, ChatID: final.ChatID, Message: final}, "")
	d.log.Debug().
		Str("chat_id", final.ChatID).
		Str("message_id", final.ID).
		Int("connections", n).
		Msg("message delivered")
	return &final, nil
}
