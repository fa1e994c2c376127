package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/auth"
	"github.com/vovakirdan/chatsync/internal/config"
	"github.com/vovakirdan/chatsync/internal/core"
	"github.com/vovakirdan/chatsync/internal/metrics"
	"github.com/vovakirdan/chatsync/internal/store"
)

// NewServer builds the HTTP server: WebSocket sync endpoint, read path API,
// membership hook, health and metrics. The WebSocket endpoint is served by
// the mux directly since the upgrade needs an unwritten response. A nil
// validator makes every /api request fail with 503.
func NewServer(hub *core.Hub, validator *auth.Validator, st store.Store, rec *metrics.Recorder, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := NewAPIHandlers(hub, logger)
	chats := NewChatHandlers(st, hub, logger)
	users := NewUserHandlers(hub, logger)

	router.GET("/health", api.Health)
	router.GET("/metrics", gin.WrapH(rec.Handler()))

	authed := router.Group("/api", LoggerMiddleware(logger), AuthMiddleware(validator, logger))
	{
		authed.GET("/chats", chats.ListChats)
		authed.GET("/chats/:id/messages", chats.ListMessages)
		authed.POST("/chats/:id/clear-unread", chats.ClearUnread)
		authed.GET("/presence", users.OnlineUsers)
	}

	internal := router.Group("/internal", LoggerMiddleware(logger))
	{
		internal.POST("/chats/:id/membership-changed", api.MembershipChanged)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, *cfg, rec, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
