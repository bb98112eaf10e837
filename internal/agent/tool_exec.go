package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// ToolExecutor validates and runs tool calls requested by the model. Every
// failure mode — unknown tool, invalid arguments, execution error, cancelled
// context — becomes an error-flagged result string so the conversation can
// continue; nothing here aborts the turn.
type ToolExecutor struct {
	registry *ToolRegistry
	logger   *slog.Logger
}

// NewToolExecutor creates an executor over the given registry.
func NewToolExecutor(registry *ToolRegistry, logger *slog.Logger) *ToolExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolExecutor{registry: registry, logger: logger}
}

// Execute runs a single tool call to completion or context cancellation.
func (e *ToolExecutor) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("unknown tool: %s", call.Name))
	}

	if err := e.validateArgs(call); err != nil {
		return errorResult(call.ID, err.Error())
	}

	type outcome struct {
		result *models.ToolResult
		err    error
	}
	// Buffered so a late finish after cancellation never blocks the goroutine.
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Execute(ctx, call.Input)
		select {
		case done <- outcome{result, err}:
		default:
			e.logger.Warn("tool execution completed after cancellation, result discarded",
				"tool", call.Name, "tool_call_id", call.ID)
		}
	}()

	select {
	case <-ctx.Done():
		e.logger.Warn("tool execution abandoned", "tool", call.Name, "tool_call_id", call.ID)
		return errorResult(call.ID, ctx.Err().Error())
	case out := <-done:
		if out.err != nil {
			return errorResult(call.ID, out.err.Error())
		}
		if out.result == nil {
			return errorResult(call.ID, "tool returned no result")
		}
		result := *out.result
		result.ToolCallID = call.ID
		return result
	}
}

func (e *ToolExecutor) validateArgs(call models.ToolCall) error {
	schema, ok := e.registry.Schema(call.Name)
	if !ok {
		return fmt.Errorf("no schema registered for tool %s", call.Name)
	}
	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tool arguments rejected: %v", err)
	}
	return nil
}

func errorResult(callID, message string) models.ToolResult {
	return models.ToolResult{
		ToolCallID: callID,
		Content:    "Error: " + message,
		IsError:    true,
	}
}
