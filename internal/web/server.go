// Package web serves the HTTP surface: chat and completion endpoints, the
// settings API, the LINE webhook mount, metrics, and health.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatrelay/chatrelay/internal/channels/line"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/sessions"
	"github.com/chatrelay/chatrelay/internal/settings"
	"github.com/chatrelay/chatrelay/pkg/models"
)

// TurnStreamer executes conversation turns. Satisfied by *TurnService.
type TurnStreamer interface {
	RunTurn(ctx context.Context, userID string, history []models.Message) (*models.TurnResult, error)
	StreamTurn(ctx context.Context, userID string, history []models.Message, onDelta func(string)) (*models.TurnResult, error)
}

// ServerConfig carries the dependencies of a Server. Settings and Messenger
// are optional; their endpoints report unavailability when absent.
type ServerConfig struct {
	Config    *config.Config
	Turns     TurnStreamer
	Settings  *settings.Store
	Sessions  sessions.Store
	Messenger line.Messenger
	Metrics   *Metrics
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Server is the HTTP front of ChatRelay.
type Server struct {
	cfg       *config.Config
	turns     TurnStreamer
	settings  *settings.Store
	sessions  sessions.Store
	messenger line.Messenger
	metrics   *Metrics
	gatherer  prometheus.Gatherer
	logger    *slog.Logger

	httpServer *http.Server
}

func NewServer(sc ServerConfig) *Server {
	logger := sc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       sc.Config,
		turns:     sc.Turns,
		settings:  sc.Settings,
		sessions:  sc.Sessions,
		messenger: sc.Messenger,
		metrics:   sc.Metrics,
		gatherer:  sc.Gatherer,
		logger:    logger,
	}
	s.httpServer = &http.Server{
		Addr:              sc.Config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	auth := AuthMiddleware(s.cfg.AuthKey, s.logger)
	mux.Handle("POST /api/chat", auth(http.HandlerFunc(s.handleChat)))
	mux.HandleFunc("POST /api/completions", s.handleCompletions)
	mux.HandleFunc("GET /api/settings", s.handleSettingsGet)
	mux.HandleFunc("POST /api/settings", s.handleSettingsPost)
	mux.HandleFunc("POST /api/reply", s.handleReply)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.cfg.Line.ChannelSecret != "" && s.messenger != nil {
		webhook := line.NewWebhook(s.cfg.Line.ChannelSecret, s.messenger, s.sessions, s.turns, s.logger)
		mux.Handle("/webhook", webhook)
	}

	return LoggingMiddleware(s.logger, s.metrics)(mux)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
