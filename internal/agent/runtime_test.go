package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// scriptedProvider replays one scripted chunk sequence per Complete call.
type scriptedProvider struct {
	steps    [][]*CompletionChunk
	requests []*CompletionRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.requests = append(p.requests, req)
	if len(p.steps) == 0 {
		return nil, errors.New("no scripted step left")
	}
	step := p.steps[0]
	p.steps = p.steps[1:]

	out := make(chan *CompletionChunk, len(step))
	go func() {
		defer close(out)
		for _, chunk := range step {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// stallingProvider never produces a chunk until the context is cancelled.
type stallingProvider struct{}

func (stallingProvider) Name() string { return "stalling" }

func (stallingProvider) Complete(ctx context.Context, _ *CompletionRequest) (<-chan *CompletionChunk, error) {
	out := make(chan *CompletionChunk)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

type funcTool struct {
	name string
	fn   func(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

func (t funcTool) Name() string        { return t.name }
func (t funcTool) Description() string { return t.name + " test tool" }
func (t funcTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{},"additionalProperties":true}`)
}
func (t funcTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return t.fn(ctx, params)
}

func mustRegistry(t *testing.T, tools ...Tool) *ToolRegistry {
	t.Helper()
	r, err := NewToolRegistry(tools...)
	if err != nil {
		t.Fatalf("NewToolRegistry: %v", err)
	}
	return r
}

func textStop(text string) []*CompletionChunk {
	return []*CompletionChunk{
		{Text: text},
		{Done: true, FinishReason: "stop", InputTokens: 10, OutputTokens: 5},
	}
}

func toolCallStep(name string, args string) []*CompletionChunk {
	return []*CompletionChunk{
		{ToolCall: &models.ToolCall{ID: "call-" + name, Name: name, Input: json.RawMessage(args)}},
		{Done: true, FinishReason: "tool_calls"},
	}
}

func TestRunPlainCompletion(t *testing.T) {
	provider := &scriptedProvider{steps: [][]*CompletionChunk{textStop("hello world")}}
	rt := NewRuntime(provider, mustRegistry(t), RuntimeOptions{}, nil)

	result, err := rt.Run(context.Background(), "be brief", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("text: got %q", result.Text)
	}
	if result.FinishReason != models.FinishStop {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
	if result.TotalTokens == nil || *result.TotalTokens != 15 {
		t.Errorf("tokens: got %v", result.TotalTokens)
	}
	if len(result.ToolsInvoked) != 0 {
		t.Errorf("tools invoked: got %v", result.ToolsInvoked)
	}
	if len(provider.requests) != 1 || provider.requests[0].System != "be brief" {
		t.Errorf("unexpected requests: %+v", provider.requests)
	}
}

func TestRunClockToolEndToEnd(t *testing.T) {
	clock := funcTool{name: "current_time", fn: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Content: "2026-09-01T10:00:00Z"}, nil
	}}
	provider := &scriptedProvider{steps: [][]*CompletionChunk{
		toolCallStep("current_time", `{}`),
		textStop("It is ten o'clock."),
	}}
	rt := NewRuntime(provider, mustRegistry(t, clock), RuntimeOptions{}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "what time is it"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinishReason != models.FinishStop {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
	if len(result.ToolsInvoked) != 1 || result.ToolsInvoked[0] != "current_time" {
		t.Errorf("tools invoked: got %v", result.ToolsInvoked)
	}

	// Second request must carry the tool exchange back to the model.
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(provider.requests))
	}
	msgs := provider.requests[1].Messages
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleTool || len(last.ToolResults) != 1 {
		t.Fatalf("expected tool result message, got %+v", last)
	}
	if last.ToolResults[0].Content != "2026-09-01T10:00:00Z" {
		t.Errorf("tool result content: got %q", last.ToolResults[0].Content)
	}
}

func TestRunToolFailureContinuesToStop(t *testing.T) {
	failing := funcTool{name: "broken", fn: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
		return nil, errors.New("upstream unreachable")
	}}
	provider := &scriptedProvider{steps: [][]*CompletionChunk{
		toolCallStep("broken", `{}`),
		textStop("I could not reach the service."),
	}}
	rt := NewRuntime(provider, mustRegistry(t, failing), RuntimeOptions{}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "try it"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinishReason != models.FinishStop {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}

	msgs := provider.requests[1].Messages
	last := msgs[len(msgs)-1]
	if len(last.ToolResults) != 1 || !last.ToolResults[0].IsError {
		t.Fatalf("expected error-flagged tool result, got %+v", last.ToolResults)
	}
	if !strings.HasPrefix(last.ToolResults[0].Content, "Error: ") {
		t.Errorf("error result content: got %q", last.ToolResults[0].Content)
	}
}

func TestRunToolLimit(t *testing.T) {
	echo := funcTool{name: "echo", fn: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Content: "ok"}, nil
	}}
	// Model asks for a tool on every step and never stops.
	steps := make([][]*CompletionChunk, 0, 6)
	for i := 0; i < 6; i++ {
		steps = append(steps, toolCallStep("echo", `{}`))
	}
	provider := &scriptedProvider{steps: steps}
	rt := NewRuntime(provider, mustRegistry(t, echo), RuntimeOptions{MaxSteps: 5}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "loop"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinishReason != models.FinishToolLimit {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
	if len(result.ToolsInvoked) != 5 {
		t.Errorf("expected 5 tool invocations, got %d", len(result.ToolsInvoked))
	}
	if len(provider.requests) != 5 {
		t.Errorf("expected 5 model invocations, got %d", len(provider.requests))
	}
}

func TestRunTimeoutIsBoundedAndRecovered(t *testing.T) {
	rt := NewRuntime(stallingProvider{}, mustRegistry(t), RuntimeOptions{Timeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("timeout must not be a hard failure: %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("turn not bounded by deadline, took %v", elapsed)
	}
	if result.FinishReason != models.FinishTimeout {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
	if result.Text != timeoutFallback {
		t.Errorf("expected fallback text, got %q", result.Text)
	}
	if result.TotalTokens != nil {
		t.Errorf("token usage must be withheld on timeout, got %v", result.TotalTokens)
	}
}

// partialProvider emits some text and then stalls until cancellation.
type partialProvider struct{ text string }

func (p partialProvider) Name() string { return "partial" }

func (p partialProvider) Complete(ctx context.Context, _ *CompletionRequest) (<-chan *CompletionChunk, error) {
	out := make(chan *CompletionChunk, 1)
	out <- &CompletionChunk{Text: p.text}
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func TestRunTimeoutKeepsPartialText(t *testing.T) {
	rt := NewRuntime(partialProvider{text: "partial answer"}, mustRegistry(t), RuntimeOptions{Timeout: 80 * time.Millisecond}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinishReason != models.FinishTimeout {
		t.Fatalf("finish reason: got %q", result.FinishReason)
	}
	if result.Text != "partial answer..." {
		t.Errorf("expected ellipsis-marked partial text, got %q", result.Text)
	}
}

func TestRunProviderTransportErrorIsHardFailure(t *testing.T) {
	provider := &scriptedProvider{steps: [][]*CompletionChunk{
		{{Error: errors.New("connection reset")}},
	}}
	rt := NewRuntime(provider, mustRegistry(t), RuntimeOptions{}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected hard failure for transport error")
	}
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
}

func TestRunClearToolSkipsPersistence(t *testing.T) {
	clear := funcTool{name: "clear", fn: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Content: "Successfully cleared chat history", ClearedHistory: true}, nil
	}}
	provider := &scriptedProvider{steps: [][]*CompletionChunk{
		toolCallStep("clear", `{}`),
		textStop("All cleared."),
	}}
	rt := NewRuntime(provider, mustRegistry(t, clear), RuntimeOptions{}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "forget everything"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.SkipPersist {
		t.Error("expected SkipPersist after history-clearing tool")
	}
}

func TestRunUnknownToolNameContinues(t *testing.T) {
	provider := &scriptedProvider{steps: [][]*CompletionChunk{
		toolCallStep("no_such_tool", `{}`),
		textStop("never mind"),
	}}
	rt := NewRuntime(provider, mustRegistry(t), RuntimeOptions{}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinishReason != models.FinishStop {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
	msgs := provider.requests[1].Messages
	last := msgs[len(msgs)-1]
	if len(last.ToolResults) != 1 || !last.ToolResults[0].IsError {
		t.Fatalf("expected error result for unknown tool, got %+v", last.ToolResults)
	}
}

func TestRunLengthFinish(t *testing.T) {
	provider := &scriptedProvider{steps: [][]*CompletionChunk{
		{
			{Text: "truncated"},
			{Done: true, FinishReason: "length"},
		},
	}}
	rt := NewRuntime(provider, mustRegistry(t), RuntimeOptions{}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinishReason != models.FinishLength {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	dup := funcTool{name: "same", fn: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Content: "x"}, nil
	}}
	if _, err := NewToolRegistry(dup, dup); err == nil {
		t.Fatal("expected duplicate-name construction error")
	}
}

func TestExecutorRejectsInvalidArguments(t *testing.T) {
	strict := funcTool{name: "strict", fn: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
		t.Fatal("tool must not execute with invalid arguments")
		return nil, nil
	}}
	// Override the permissive default schema.
	tool := schemaTool{funcTool: strict, schema: `{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"],"additionalProperties":false}`}

	registry := mustRegistry(t, tool)
	exec := NewToolExecutor(registry, nil)

	result := exec.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "strict", Input: json.RawMessage(`{"n":"not an int"}`)})
	if !result.IsError || !strings.HasPrefix(result.Content, "Error: ") {
		t.Fatalf("expected validation error result, got %+v", result)
	}
}

type schemaTool struct {
	funcTool
	schema string
}

func (t schemaTool) Schema() json.RawMessage { return json.RawMessage(t.schema) }

func TestExecutorDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	slow := funcTool{name: "slow", fn: func(ctx context.Context, _ json.RawMessage) (*models.ToolResult, error) {
		<-release
		return &models.ToolResult{Content: "too late"}, nil
	}}
	registry := mustRegistry(t, slow)
	exec := NewToolExecutor(registry, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := exec.Execute(ctx, models.ToolCall{ID: "c1", Name: "slow", Input: json.RawMessage(`{}`)})
	close(release)

	if !result.IsError {
		t.Fatalf("expected error result for abandoned tool, got %+v", result)
	}
	if !strings.Contains(result.Content, "deadline") {
		t.Errorf("expected deadline message, got %q", result.Content)
	}
}

func TestMultipleToolCallsInOneStep(t *testing.T) {
	calls := 0
	counter := funcTool{name: "count", fn: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
		calls++
		return &models.ToolResult{Content: fmt.Sprintf("call %d", calls)}, nil
	}}
	provider := &scriptedProvider{steps: [][]*CompletionChunk{
		{
			{ToolCall: &models.ToolCall{ID: "a", Name: "count", Input: json.RawMessage(`{}`)}},
			{ToolCall: &models.ToolCall{ID: "b", Name: "count", Input: json.RawMessage(`{}`)}},
			{Done: true, FinishReason: "tool_calls"},
		},
		textStop("done"),
	}}
	rt := NewRuntime(provider, mustRegistry(t, counter), RuntimeOptions{}, nil)

	result, err := rt.Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.ToolsInvoked) != 2 {
		t.Errorf("tools invoked: got %v", result.ToolsInvoked)
	}
	msgs := provider.requests[1].Messages
	last := msgs[len(msgs)-1]
	if len(last.ToolResults) != 2 {
		t.Fatalf("expected both results fed back, got %+v", last.ToolResults)
	}
	if last.ToolResults[0].ToolCallID != "a" || last.ToolResults[1].ToolCallID != "b" {
		t.Errorf("result order/ids wrong: %+v", last.ToolResults)
	}
}
