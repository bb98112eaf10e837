package web

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatrelay/chatrelay/internal/agent"
	"github.com/chatrelay/chatrelay/internal/agent/providers"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/sessions"
	"github.com/chatrelay/chatrelay/internal/settings"
	"github.com/chatrelay/chatrelay/internal/tools"
	"github.com/chatrelay/chatrelay/pkg/models"
)

// TurnService assembles and executes conversation turns. Each turn resolves
// the model specification fresh so settings changes take effect without a
// restart.
type TurnService struct {
	cfg      *config.Config
	settings *settings.Store
	store    sessions.Store
	metrics  *Metrics
	logger   *slog.Logger
}

// NewTurnService wires a turn service. settingsStore may be nil, in which
// case the environment configuration is used directly. store backs the
// history-clearing tool for channels with persisted conversations; turns with
// an empty userID run without it.
func NewTurnService(cfg *config.Config, settingsStore *settings.Store, store sessions.Store, metrics *Metrics, logger *slog.Logger) *TurnService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnService{
		cfg:      cfg,
		settings: settingsStore,
		store:    store,
		metrics:  metrics,
		logger:   logger,
	}
}

// RunTurn executes one turn and returns the aggregated result.
func (s *TurnService) RunTurn(ctx context.Context, userID string, history []models.Message) (*models.TurnResult, error) {
	return s.run(ctx, userID, history, nil)
}

// StreamTurn executes one turn, forwarding text deltas to onDelta as they
// arrive. The returned result carries the complete final text.
func (s *TurnService) StreamTurn(ctx context.Context, userID string, history []models.Message, onDelta func(string)) (*models.TurnResult, error) {
	return s.run(ctx, userID, history, onDelta)
}

func (s *TurnService) run(ctx context.Context, userID string, history []models.Message, onDelta func(string)) (*models.TurnResult, error) {
	spec, err := s.resolveSpec(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := providers.Resolve(spec)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	// Stateless turns (no user identity) get no history-clearing tool.
	historyStore := s.store
	if userID == "" {
		historyStore = nil
	}
	registry, err := tools.BuildRegistry(s.cfg, historyStore, userID)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	runtime := agent.NewRuntime(provider, registry, agent.RuntimeOptions{
		Timeout:     spec.Timeout,
		MaxTokens:   spec.MaxTokens,
		Temperature: spec.Temperature,
		OnDelta:     onDelta,
	}, s.logger)

	result, err := runtime.Run(ctx, spec.SystemPrompt, history)
	if err != nil {
		s.logger.Error("turn failed", "provider", provider.Name(), "error", err)
		return nil, err
	}
	s.metrics.ObserveTurn(result)
	return result, nil
}

func (s *TurnService) resolveSpec(ctx context.Context) (models.ModelSpec, error) {
	if s.settings != nil {
		return s.settings.Resolve(ctx, s.cfg)
	}
	return models.ModelSpec{
		Provider:     models.Provider(s.cfg.LLM.Provider),
		ModelID:      s.cfg.LLM.Model,
		APIKey:       s.cfg.LLM.APIKey,
		BaseURL:      s.cfg.LLM.BaseURL,
		MaxTokens:    s.cfg.LLM.MaxTokens,
		Temperature:  s.cfg.LLM.Temperature,
		SystemPrompt: s.cfg.LLM.SystemRole,
		Timeout:      s.cfg.LLM.Timeout,
	}, nil
}
