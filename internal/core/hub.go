package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/metrics"
)

// Options tunes the sync layer.
type Options struct {
	// SendBuffer is the outbound queue size of each connection.
	SendBuffer int
	// MembershipTTL bounds how stale a cached member set may be.
	MembershipTTL time.Duration
	// PersistTimeout bounds each persistence call.
	PersistTimeout time.Duration
	// MaxTextLength limits message text in runes. Zero disables the check.
	MaxTextLength int
	// TrustClaimedIdentity accepts the claimed user id when no token is sent.
	// Development only.
	TrustClaimedIdentity bool
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		SendBuffer:     64,
		MembershipTTL:  15 * time.Second,
		PersistTimeout: 5 * time.Second,
		MaxTextLength:  4096,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = def.SendBuffer
	}
	if o.MembershipTTL <= 0 {
		o.MembershipTTL = def.MembershipTTL
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = def.PersistTimeout
	}
	return o
}

// Hub wires the sync components together and is the single entry point for
// transports.
type Hub struct {
	registry   *ConnectionRegistry
	presence   *PresenceTracker
	members    *MembershipCache
	router     *RoomRouter
	dispatcher *MessageDispatcher
	receipts   *ReadReceiptCoordinator
	typing     *TypingSignal

	authn   Authenticator
	opts    Options
	metrics *metrics.Recorder
	log     *zerolog.Logger
}

// NewHub creates a hub backed by st. authn may be nil when
// opts.TrustClaimedIdentity is set. rec may be nil.
func NewHub(st Persistence, authn Authenticator, opts Options, rec *metrics.Recorder, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opts = opts.withDefaults()

	registry := NewConnectionRegistry(logger)
	members := NewMembershipCache(st, opts.MembershipTTL, opts.PersistTimeout, rec, logger)
	router := NewRoomRouter(members, registry, rec, logger)
	seq := newChatSequencer()

	return &Hub{
		registry:   registry,
		presence:   NewPresenceTracker(registry, rec, logger),
		members:    members,
		router:     router,
		dispatcher: newMessageDispatcher(st, members, router, seq, opts, rec, logger),
		receipts:   newReadReceiptCoordinator(st, members, router, seq, opts, logger),
		typing:     newTypingSignal(members, router, logger),
		authn:      authn,
		opts:       opts,
		metrics:    rec,
		log:        logger,
	}
}

// Run keeps background maintenance alive until ctx is done, then drains
// every live connection.
func (h *Hub) Run(ctx context.Context) error {
	h.members.Run(ctx)
	n := h.registry.Drain()
	h.metrics.SetConnections(0)
	h.metrics.SetOnlineUsers(0)
	h.log.Info().Int("connections", n).Msg("hub drained")
	return nil
}

// NewConnection creates an unidentified connection for a new transport.
func (h *Hub) NewConnection() *Connection {
	return NewConnection(h.opts.SendBuffer)
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *ConnectionRegistry {
	return h.registry
}

// Identify authenticates conn and registers it. On failure the connection
// stays unregistered and the caller must close the transport.
func (h *Hub) Identify(ctx context.Context, conn *Connection, claimedUserID, token string) (string, error) {
	if conn.State() == StateAuthenticated {
		if claimedUserID != "" && claimedUserID != conn.UserID() {
			return "", authenticationError("connection already identified as another user")
		}
		conn.Send(presenceEvent(EventOnlineUsers, h.registry.OnlineUsers()))
		return conn.UserID(), nil
	}

	userID, err := h.resolveIdentity(ctx, claimedUserID, token)
	if err != nil {
		return "", err
	}
	connID, err := h.registry.Register(userID, conn)
	if err != nil {
		if errors.Is(err, ErrRegistryClosed) {
			return "", err
		}
		return "", authenticationError(err.Error())
	}
	h.metrics.SetConnections(h.registry.Len())
	conn.Send(presenceEvent(EventOnlineUsers, h.registry.OnlineUsers()))

	h.log.Info().Uint64("conn_id", connID).Str("user_id", userID).Msg("connection identified")
	return userID, nil
}

func (h *Hub) resolveIdentity(ctx context.Context, claimedUserID, token string) (string, error) {
	if token == "" {
		if h.opts.TrustClaimedIdentity && claimedUserID != "" {
			return claimedUserID, nil
		}
		return "", authenticationError("identity token required")
	}
	if h.authn == nil {
		return "", authenticationError("token validation unavailable")
	}
	userID, err := h.authn.ValidateIdentity(ctx, token)
	if err != nil {
		return "", authenticationError("invalid identity token")
	}
	if claimedUserID != "" && claimedUserID != userID {
		return "", authenticationError("token does not match user")
	}
	return userID, nil
}

// Handle processes one inbound command. Errors are reported to conn only and
// returned so the transport can decide whether to close.
func (h *Hub) Handle(ctx context.Context, conn *Connection, cmd *Command) error {
	err := h.handle(ctx, conn, cmd)
	if err != nil {
		h.reject(conn, cmd, err)
	}
	return err
}

func (h *Hub) handle(ctx context.Context, conn *Connection, cmd *Command) error {
	if cmd == nil {
		return validationError("empty command")
	}
	if cmd.Kind == CommandIdentify {
		_, err := h.Identify(ctx, conn, cmd.UserID, cmd.Token)
		return err
	}
	if conn.State() != StateAuthenticated {
		return authenticationError("identify first")
	}
	userID := conn.UserID()
	if cmd.UserID != "" && cmd.UserID != userID {
		return validationError("user id does not match connection")
	}

	switch cmd.Kind {
	case CommandLogin:
		conn.Send(presenceEvent(EventOnlineUsers, h.registry.OnlineUsers()))
		return nil
	case CommandSendMessage:
		msg := cmd.Message
		if msg.ChatID == "" {
			msg.ChatID = cmd.ChatID
		}
		_, err := h.dispatcher.Dispatch(ctx, userID, msg)
		return err
	case CommandClearUnread:
		_, err := h.receipts.Clear(ctx, userID, cmd.ChatID)
		return err
	case CommandTyping:
		_, err := h.typing.Relay(ctx, userID, cmd.ChatID)
		return err
	default:
		return validationError("unknown command")
	}
}

func (h *Hub) reject(conn *Connection, cmd *Command, err error) {
	ce := AsCoreError(err)
	h.metrics.Rejected(ce.Code)

	var ev *zerolog.Event
	switch {
	case errors.Is(err, ErrValidation):
		ev = h.log.Debug()
	case errors.Is(err, ErrAuthorization), errors.Is(err, ErrAuthentication):
		ev = h.log.Info()
	default:
		ev = h.log.Warn()
	}
	kind := "nil"
	if cmd != nil {
		kind = cmd.Kind.String()
	}
	ev.Err(err).
		Uint64("conn_id", conn.ID()).
		Str("user_id", conn.UserID()).
		Str("command", kind).
		Str("code", ce.Code).
		Msg("command rejected")

	if errors.Is(err, ErrRegistryClosed) {
		return
	}
	conn.Send(errorEvent(ce))
}

// Disconnect releases the connection unconditionally. Safe to call more than
// once and for connections that never identified.
func (h *Hub) Disconnect(conn *Connection) {
	conn.Close()
	if id := conn.ID(); id != 0 && h.registry.Unregister(id) {
		h.metrics.SetConnections(h.registry.Len())
		h.log.Info().Uint64("conn_id", id).Str("user_id", conn.UserID()).Msg("connection closed")
	}
}

// OnlineUsers returns the presence snapshot.
func (h *Hub) OnlineUsers() []string {
	return h.presence.Snapshot()
}

// InvalidateMembership is called after a chat's member list changed.
func (h *Hub) InvalidateMembership(chatID string) {
	h.members.Invalidate(chatID)
}

// IsMember reports whether userID belongs to chatID per the membership cache.
func (h *Hub) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	members, err := h.members.MembersOf(ctx, chatID)
	if err != nil {
		return false, err
	}
	return members.Has(userID), nil
}

// ClearUnread runs a read receipt outside of a socket, e.g. from HTTP.
func (h *Hub) ClearUnread(ctx context.Context, userID, chatID string) (ReadReceipt, error) {
	return h.receipts.Clear(ctx, userID, chatID)
}

// SendMessage dispatches a message outside of a socket.
func (h *Hub) SendMessage(ctx context.Context, userID string, msg Message) (*Message, error) {
	return h.dispatcher.Dispatch(ctx, userID, msg)
}
