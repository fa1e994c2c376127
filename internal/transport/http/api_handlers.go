package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// APIHandlers serves hooks called by other services.
type APIHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub: hub,
		log: logger,
	}
}

// MembershipChanged drops the cached member set of a chat. Called by the
// membership service after adding or removing a member.
// POST /internal/chats/:id/membership-changed
func (h *APIHandlers) MembershipChanged(c *gin.Context) {
	chatID := c.Param("id")
	h.hub.InvalidateMembership(chatID)
	h.log.Info().Str("chat_id", chatID).Msg("membership change received")
	c.Status(http.StatusNoContent)
}

// Health reports liveness.
// GET /health
func (h *APIHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func writeCoreError(c *gin.Context, logger *zerolog.Logger, err error) {
	ce := core.AsCoreError(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrChatNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrRateLimited):
		status = http.StatusTooManyRequests
	default:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}
