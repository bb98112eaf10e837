// Package models defines the shared data model for ChatRelay: conversation
// messages, tool calls and results, model specifications, and turn outcomes.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one of the closed enumeration values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is a single entry in a conversation. Index order within a
// conversation is chronology; the sequence is append-only.
//
// Content carries plain text. A user message may instead carry structured
// Parts (currently an image payload) for the duration of one turn; image
// bytes are never written to long-term storage.
type Message struct {
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Parts   []ContentPart `json:"-"`

	// ToolCalls is set on assistant messages that requested tool execution;
	// ToolResults is set on tool messages carrying the outputs back. Both are
	// working-state for a single turn and are stripped before persistence.
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ContentPart is one element of a structured message body.
type ContentPart struct {
	Type  string `json:"type"` // "text" or "image"
	Text  string `json:"text,omitempty"`
	Image []byte `json:"-"`

	// MimeType describes the image payload when Type is "image".
	MimeType string `json:"mime_type,omitempty"`
}

// HasImage reports whether the message carries an image part.
func (m *Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == "image" && len(p.Image) > 0 {
			return true
		}
	}
	return false
}

// ToolCall represents the model's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution. Errors are
// communicated via IsError with a descriptive Content string so the model
// can react conversationally instead of the turn aborting.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`

	// ClearedHistory marks that the tool wiped the user's stored
	// conversation. The orchestration loop surfaces it on the TurnResult so
	// the caller skips the default post-turn persistence instead of writing
	// the just-cleared history back.
	ClearedHistory bool `json:"cleared_history,omitempty"`
}

// FinishReason is the terminal classification of how a turn ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolLimit FinishReason = "tool-limit"
	FinishTimeout   FinishReason = "timeout"
	FinishError     FinishReason = "error"
)

// TurnResult is the outcome of one orchestrated turn. It is immutable after
// construction.
type TurnResult struct {
	// Text is the final assistant reply (possibly partial on timeout).
	Text string `json:"message"`

	// FinishReason classifies the termination.
	FinishReason FinishReason `json:"finishReason"`

	// TotalTokens is the usage reported by the provider. Nil when the turn
	// timed out, since the stream was abandoned before usage arrived.
	TotalTokens *int `json:"totalTokens,omitempty"`

	// ToolsInvoked lists tool names in call order.
	ToolsInvoked []string `json:"toolsInvoked,omitempty"`

	// SkipPersist is set when a tool cleared the stored history mid-turn;
	// the caller must not write the borrowed history copy back.
	SkipPersist bool `json:"-"`

	// Elapsed is the wall-clock duration of the turn.
	Elapsed time.Duration `json:"-"`
}
