package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// ClockTool reports the current date and time. It is side-effect free and
// always available.
type ClockTool struct {
	now func() time.Time
}

// NewClockTool creates a clock tool backed by the system clock.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

func (t *ClockTool) Name() string {
	return "current_time"
}

func (t *ClockTool) Description() string {
	return "Get the current date and time. Optionally specify an IANA timezone like Asia/Taipei."
}

func (t *ClockTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name, defaults to UTC"
			}
		},
		"additionalProperties": false
	}`)
}

func (t *ClockTool) Execute(_ context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Timezone string `json:"timezone"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, err
		}
	}

	loc := time.UTC
	if args.Timezone != "" {
		parsed, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return &models.ToolResult{
				Content: "Error: unknown timezone: " + args.Timezone,
				IsError: true,
			}, nil
		}
		loc = parsed
	}

	return &models.ToolResult{
		Content: t.now().In(loc).Format(time.RFC1123),
	}, nil
}
