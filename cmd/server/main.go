package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatsync/internal/app"
	"github.com/vovakirdan/chatsync/internal/auth"
	"github.com/vovakirdan/chatsync/internal/config"
	applog "github.com/vovakirdan/chatsync/internal/log"
	"github.com/vovakirdan/chatsync/internal/seed"
	"github.com/vovakirdan/chatsync/internal/store/sqlite"
)

type rootFlags struct {
	configPath string
	logLevel   string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Real-time chat synchronization server",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config.yaml")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(flags), newSeedCmd(flags), newTokenCmd(flags))
	return root
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.overrides.Addr, "addr", "", "HTTP listen address")
	f.StringVar(&flags.overrides.DatabasePath, "db", "", "sqlite database path")
	f.DurationVar(&flags.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	f.DurationVar(&flags.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}

// loadConfig resolves configuration and builds the logger at the configured level.
func loadConfig(flags *rootFlags) (config.Config, *zerolog.Logger, error) {
	bootstrap := applog.New("info")
	cfg, path, err := config.Load(bootstrap, flags.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	flags.overrides.LogLevel = flags.logLevel
	cfg.UpdateFrom(flags.overrides)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := applog.New(cfg.LogLevel)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, logger, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting chatsync server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newSeedCmd(flags *rootFlags) *cobra.Command {
	var (
		file   string
		notify string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create chats and members from a YAML fixture file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			fixtures, err := seed.LoadFile(file)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer st.Close()

			res, err := seed.Apply(cmd.Context(), st, fixtures)
			if err != nil {
				return err
			}
			logger.Info().
				Int("created", res.Created).
				Int("members_added", res.MembersAdded).
				Msg("fixtures applied")

			if notify == "" {
				return nil
			}
			for _, chatID := range res.Changed {
				if err := notifyMembershipChanged(cmd.Context(), notify, chatID); err != nil {
					logger.Warn().Err(err).Str("chat_id", chatID).Msg("membership notification failed")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "chats.yaml", "fixture file")
	cmd.Flags().StringVar(&notify, "notify", "", "base URL of a running server to notify about membership changes")
	return cmd
}

func notifyMembershipChanged(ctx context.Context, baseURL, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	endpoint := baseURL + "/internal/chats/" + url.PathEscape(chatID) + "/membership-changed"
	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodPost, endpoint, stdhttp.NoBody)
	if err != nil {
		return err
	}
	resp, err := stdhttp.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusNoContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		user string
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an identity token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}
			jwtCfg := app.JWTConfig(&cfg)
			if ttl > 0 {
				jwtCfg.TTL = ttl
			}
			token, err := auth.GenerateToken(jwtCfg, user, name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default 24h)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
