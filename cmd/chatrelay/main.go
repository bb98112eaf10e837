// Package main provides the CLI entry point for the ChatRelay conversation
// bridge.
//
// ChatRelay accepts chat turns from a web client or a LINE webhook, forwards
// them to a configurable LLM backend (OpenAI, Google, Anthropic), executes
// model-requested tools under a step and time budget, and persists per-user
// conversation history.
//
// # Basic Usage
//
// Start the server:
//
//	chatrelay serve
//
// Start with a YAML config file (values may reference environment variables):
//
//	chatrelay serve --config chatrelay.yaml
//
// # Environment Variables
//
//   - LLM_PROVIDER / LLM_MODEL / LLM_API_KEY: backend selection
//   - LINE_CHANNEL_ACCESS_TOKEN / LINE_CHANNEL_SECRET: LINE channel
//   - AUTH_KEY: bearer token guarding /api/chat
//   - ENCRYPTION_KEY: passphrase for at-rest secret encryption
//   - GOOGLE_MAP_API_KEY / TAVILY_API_KEY: optional tool backends
//   - DATABASE_PATH: SQLite file for history and settings
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/chatrelay/chatrelay/internal/channels/line"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/secrets"
	"github.com/chatrelay/chatrelay/internal/sessions"
	"github.com/chatrelay/chatrelay/internal/settings"
	"github.com/chatrelay/chatrelay/internal/web"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "chatrelay",
		Short:        "ChatRelay - conversational agent bridge",
		Long:         "ChatRelay bridges web and LINE chat clients to LLM backends with tool execution.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ChatRelay HTTP server",
		Long: `Start the ChatRelay server: web chat endpoints, the LINE webhook when
channel credentials are configured, the settings API, metrics and health.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	logger := slog.Default()
	if debug {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		slog.SetDefault(logger)
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	cipher := secrets.New(cfg.EncryptionKey)
	if !cipher.Enabled() {
		logger.Warn("no encryption key configured, secrets are stored in plaintext")
	}

	settingsStore, err := settings.NewStore(cfg.DatabasePath, cipher, logger)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer settingsStore.Close()

	sessionStore, err := sessions.NewSQLiteStore(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessionStore.Close()

	registry := prometheus.NewRegistry()
	metrics := web.NewMetrics(registry)
	turns := web.NewTurnService(cfg, settingsStore, sessionStore, metrics, logger)

	var messenger line.Messenger
	if cfg.Line.ChannelAccessToken != "" {
		messenger = line.NewClient(cfg.Line.ChannelAccessToken, nil)
	}

	server := web.NewServer(web.ServerConfig{
		Config:    cfg,
		Turns:     turns,
		Settings:  settingsStore,
		Sessions:  sessionStore,
		Messenger: messenger,
		Metrics:   metrics,
		Gatherer:  registry,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
