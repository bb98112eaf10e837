package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// Reply used when the deadline fires before any text was produced.
const timeoutFallback = "抱歉，處理您的請求時間過長，請稍後再試一次。"

const (
	defaultMaxSteps = 5
	defaultTimeout  = 28 * time.Second
)

// RuntimeOptions tunes one Runtime. Zero values fall back to defaults.
type RuntimeOptions struct {
	// MaxSteps bounds the number of model invocations per turn; each tool
	// round consumes one step.
	MaxSteps int

	// Timeout is the wall-clock budget for the whole turn.
	Timeout time.Duration

	MaxTokens   int
	Temperature *float32

	// OnDelta, when set, receives each text fragment as it arrives from the
	// provider. Called from the Run goroutine; must not block.
	OnDelta func(text string)
}

// Runtime drives one conversational turn: it streams a completion, executes
// requested tools, feeds results back, and repeats until the model stops, a
// step or time budget runs out, or the transport fails.
type Runtime struct {
	provider LLMProvider
	registry *ToolRegistry
	executor *ToolExecutor
	opts     RuntimeOptions
	logger   *slog.Logger
}

// NewRuntime assembles a runtime over a provider and a tool registry.
func NewRuntime(provider LLMProvider, registry *ToolRegistry, opts RuntimeOptions, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Runtime{
		provider: provider,
		registry: registry,
		executor: NewToolExecutor(registry, logger),
		opts:     opts,
		logger:   logger,
	}
}

// Run executes one turn over the given history. The returned TurnResult is
// non-nil except on the hard-failure path (provider transport error), which
// is the only condition reported through the error return. Timeouts, tool
// failures, and budget exhaustion all produce a usable result.
func (r *Runtime) Run(ctx context.Context, system string, history []models.Message) (*models.TurnResult, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	working := make([]models.Message, len(history))
	copy(working, history)

	var (
		text         strings.Builder
		toolsInvoked []string
		totalTokens  int
		skipPersist  bool
	)

	for step := 0; step < r.opts.MaxSteps; step++ {
		req := &CompletionRequest{
			System:      system,
			Messages:    working,
			Tools:       r.registry.List(),
			MaxTokens:   r.opts.MaxTokens,
			Temperature: r.opts.Temperature,
		}
		stream, err := r.provider.Complete(runCtx, req)
		if err != nil {
			if runCtx.Err() != nil {
				return r.timeoutResult(&text, skipPersist, start), nil
			}
			return nil, fmt.Errorf("start completion: %w", err)
		}

		var (
			stepText  strings.Builder
			calls     []models.ToolCall
			finish    string
			streamErr error
		)
	consume:
		for {
			select {
			case <-runCtx.Done():
				// Stop consuming immediately; cancellation tears the
				// provider's stream down behind us.
				text.WriteString(stepText.String())
				return r.timeoutResult(&text, skipPersist, start), nil
			case chunk, ok := <-stream:
				if !ok {
					break consume
				}
				if chunk.Error != nil {
					streamErr = chunk.Error
					break consume
				}
				stepText.WriteString(chunk.Text)
				if chunk.Text != "" && r.opts.OnDelta != nil {
					r.opts.OnDelta(chunk.Text)
				}
				if chunk.ToolCall != nil {
					calls = append(calls, *chunk.ToolCall)
				}
				totalTokens += chunk.InputTokens + chunk.OutputTokens
				if chunk.Done {
					finish = chunk.FinishReason
				}
			}
		}
		text.WriteString(stepText.String())

		if streamErr != nil {
			if runCtx.Err() != nil {
				return r.timeoutResult(&text, skipPersist, start), nil
			}
			return nil, fmt.Errorf("completion stream: %w", streamErr)
		}
		if runCtx.Err() != nil {
			return r.timeoutResult(&text, skipPersist, start), nil
		}

		if len(calls) == 0 {
			reason := models.FinishStop
			if finish == "length" {
				reason = models.FinishLength
			}
			return r.finish(&text, reason, totalTokens, toolsInvoked, skipPersist, start), nil
		}

		working = append(working, models.Message{
			Role:      models.RoleAssistant,
			Content:   stepText.String(),
			ToolCalls: calls,
		})
		results := make([]models.ToolResult, 0, len(calls))
		for _, call := range calls {
			toolsInvoked = append(toolsInvoked, call.Name)
			result := r.executor.Execute(runCtx, call)
			if result.ClearedHistory {
				skipPersist = true
			}
			results = append(results, result)
			if runCtx.Err() != nil {
				return r.timeoutResult(&text, skipPersist, start), nil
			}
		}
		working = append(working, models.Message{
			Role:        models.RoleTool,
			ToolResults: results,
		})
	}

	// Step budget exhausted while the model still wanted tools.
	return r.finish(&text, models.FinishToolLimit, totalTokens, toolsInvoked, skipPersist, start), nil
}

func (r *Runtime) finish(text *strings.Builder, reason models.FinishReason, tokens int, toolsInvoked []string, skipPersist bool, start time.Time) *models.TurnResult {
	elapsed := time.Since(start)
	r.logger.Info("turn completed",
		"tokens", tokens,
		"finish_reason", string(reason),
		"tool_usage", len(toolsInvoked),
		"elapsed_ms", elapsed.Milliseconds())
	return &models.TurnResult{
		Text:         text.String(),
		FinishReason: reason,
		TotalTokens:  &tokens,
		ToolsInvoked: toolsInvoked,
		SkipPersist:  skipPersist,
		Elapsed:      elapsed,
	}
}

// timeoutResult keeps whatever text accumulated and marks the cut with an
// ellipsis; with nothing accumulated it substitutes a fixed apology. Token
// usage and tool attribution are withheld since the stream was abandoned
// before they were final.
func (r *Runtime) timeoutResult(text *strings.Builder, skipPersist bool, start time.Time) *models.TurnResult {
	elapsed := time.Since(start)
	out := text.String()
	if out == "" {
		out = timeoutFallback
	} else {
		out += "..."
	}
	r.logger.Info("turn timed out",
		"finish_reason", string(models.FinishTimeout),
		"elapsed_ms", elapsed.Milliseconds())
	return &models.TurnResult{
		Text:         out,
		FinishReason: models.FinishTimeout,
		SkipPersist:  skipPersist,
		Elapsed:      elapsed,
	}
}
