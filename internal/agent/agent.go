// Package agent contains the turn orchestration loop and the contracts it
// drives: streaming LLM providers and executable tools.
package agent

import (
	"context"
	"encoding/json"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// LLMProvider is a streaming completion backend. Complete returns a channel
// of chunks; the provider closes it after sending a terminal chunk (Done or
// Error set). Providers must stop producing promptly when ctx is cancelled.
type LLMProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
}

// CompletionRequest is one model invocation within a turn. Messages carry
// the conversation in chronological order, including assistant messages with
// ToolCalls and tool messages with ToolResults from earlier steps of the same
// turn.
type CompletionRequest struct {
	System      string
	Messages    []models.Message
	Tools       []Tool
	MaxTokens   int
	Temperature *float32
}

// CompletionChunk is one increment of a streamed completion.
type CompletionChunk struct {
	// Text is a delta of assistant output.
	Text string

	// ToolCall is set when the model requests a tool invocation. A single
	// completion may emit several before finishing.
	ToolCall *models.ToolCall

	// Done marks the final chunk of a successful stream.
	Done bool

	// FinishReason is set on the Done chunk: "stop", "length", or
	// "tool_calls" in provider-neutral form.
	FinishReason string

	// Error carries a transport failure; the stream ends after it.
	Error error

	InputTokens  int
	OutputTokens int
}

// Tool is an executable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON Schema describing the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. Failures are reported through the result's
	// IsError flag; a returned error means the tool could not run at all.
	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}
