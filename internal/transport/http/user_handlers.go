package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/core"
)

// UserHandlers provides HTTP handlers for user presence.
type UserHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(hub *core.Hub, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		hub: hub,
		log: logger,
	}
}

// PresenceResponse lists users with at least one live connection.
type PresenceResponse struct {
	Users []string `json:"users"`
}

// OnlineUsers returns the presence snapshot.
// GET /api/presence
func (h *UserHandlers) OnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, PresenceResponse{Users: h.hub.OnlineUsers()})
}
