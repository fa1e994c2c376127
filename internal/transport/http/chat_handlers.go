package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/core"
	"github.com/vovakirdan/chatsync/internal/store"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// ChatHandlers serves the read path clients use to reconcile after a
// reconnect, and the HTTP variant of clearing unread state.
type ChatHandlers struct {
	store store.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st store.Store, hub *core.Hub, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		store: st,
		hub:   hub,
		log:   logger,
	}
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID        string `json:"_id"`
	ChatID    string `json:"chatId"`
	Sender    string `json:"sender"`
	Text      string `json:"text,omitempty"`
	Image     string `json:"image,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	IsGroup            bool             `json:"isGroup"`
	Members            []string         `json:"members"`
	UnreadMessageCount int              `json:"unreadMessageCount"`
	LastMessage        *MessageResponse `json:"lastMessage,omitempty"`
	UpdatedAt          string           `json:"updatedAt"`
}

// ClearUnreadResponse is returned after a read receipt.
type ClearUnreadResponse struct {
	ChatID  string `json:"chatId"`
	Changed bool   `json:"changed"`
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Sender:    m.SenderID,
		Text:      m.Text,
		Image:     m.Image,
		Read:      m.Read,
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
	}
}

// ListChats handles listing the caller's chats.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	chats, err := h.store.ListChats(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list chats")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		item := ChatResponse{
			ID:                 chat.ID,
			Name:               chat.Name,
			IsGroup:            chat.IsGroup,
			Members:            chat.Members,
			UnreadMessageCount: chat.UnreadCount,
			UpdatedAt:          chat.UpdatedAt.Format(time.RFC3339Nano),
		}
		if chat.LastMessageID != nil {
			last, err := h.store.GetMessage(ctx, *chat.LastMessageID)
			switch {
			case err == nil:
				resp := messageResponse(last)
				item.LastMessage = &resp
			case !errors.Is(err, store.ErrNotFound):
				h.log.Warn().Err(err).Str("chat_id", chat.ID).Msg("failed to load last message")
			}
		}
		response = append(response, item)
	}

	h.log.Debug().Str("user_id", uid).Int("chat_count", len(chats)).Msg("chats listed successfully")
	c.JSON(http.StatusOK, response)
}

// ListMessages handles paging through a chat's history.
// GET /api/chats/:id/messages?limit=50&before=<message id>
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	chatID := c.Param("id")

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxMessageLimit)
	}
	var before *string
	if raw := c.Query("before"); raw != "" {
		before = &raw
	}

	ctx := c.Request.Context()
	member, err := h.hub.IsMember(ctx, chatID, uid)
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this chat"})
		return
	}

	messages, err := h.store.ListMessages(ctx, chatID, limit, before)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		response = append(response, messageResponse(m))
	}
	c.JSON(http.StatusOK, response)
}

// ClearUnread resets the chat's unread state and notifies every device.
// POST /api/chats/:id/clear-unread
func (h *ChatHandlers) ClearUnread(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	receipt, err := h.hub.ClearUnread(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ClearUnreadResponse{ChatID: receipt.ChatID, Changed: receipt.Changed})
}
