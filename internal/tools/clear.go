package tools

import (
	"context"
	"encoding/json"

	"github.com/chatrelay/chatrelay/internal/sessions"
	"github.com/chatrelay/chatrelay/pkg/models"
)

// ClearTool wipes the calling user's stored conversation history. A
// successful clear is flagged on the result so the turn's caller skips
// writing the stale history back.
type ClearTool struct {
	store  sessions.Store
	userID string
}

// NewClearTool binds the tool to one user's history. A nil store leaves the
// tool advertised but unconfigured.
func NewClearTool(store sessions.Store, userID string) *ClearTool {
	return &ClearTool{store: store, userID: userID}
}

func (t *ClearTool) Name() string {
	return "clear"
}

func (t *ClearTool) Description() string {
	return "Clear the conversation history for the current user."
}

func (t *ClearTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
}

func (t *ClearTool) Execute(ctx context.Context, _ json.RawMessage) (*models.ToolResult, error) {
	if t.store == nil {
		return &models.ToolResult{
			Content: "Clear function not configured",
			IsError: true,
		}, nil
	}
	if err := t.store.Clear(ctx, t.userID); err != nil {
		return &models.ToolResult{
			Content: "Failed to clear chat history",
			IsError: true,
		}, nil
	}
	return &models.ToolResult{
		Content:        "Successfully cleared chat history",
		ClearedHistory: true,
	}, nil
}
