package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/chatsync/internal/auth"
	"github.com/vovakirdan/chatsync/internal/config"
	"github.com/vovakirdan/chatsync/internal/core"
	"github.com/vovakirdan/chatsync/internal/metrics"
	"github.com/vovakirdan/chatsync/internal/store"
	"github.com/vovakirdan/chatsync/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatsync/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// JWTConfig builds the token configuration from cfg.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
}

// HubOptions maps configuration onto the sync layer.
func HubOptions(cfg *config.Config) core.Options {
	return core.Options{
		SendBuffer:           cfg.SendBuffer,
		MembershipTTL:        cfg.MembershipTTL,
		PersistTimeout:       cfg.PersistTimeout,
		MaxTextLength:        cfg.MaxTextLength,
		TrustClaimedIdentity: !cfg.JWTRequired,
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	// Without a secret there is no validator: sockets accept claimed ids only
	// and the HTTP API answers 503.
	var (
		validator *auth.Validator
		authn     core.Authenticator
	)
	if cfg.JWTSecret != "" {
		validator = auth.NewValidator(JWTConfig(cfg))
		authn = validator
	} else {
		logger.Warn().Msg("jwt_secret is empty; identity tokens are rejected, only claimed ids are accepted and /api is disabled")
	}

	rec := metrics.New()
	hub := core.NewHub(st, authn, HubOptions(cfg), rec, logger)
	server := transporthttp.NewServer(hub, validator, st, rec, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run serves until ctx is cancelled or the server fails, then shuts down
// the HTTP server, drains every live connection and closes the store.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
