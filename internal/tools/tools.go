// Package tools provides the concrete tools exposed to the model and the
// construction of the tool registry from configuration.
package tools

import (
	"net/http"
	"time"

	"github.com/chatrelay/chatrelay/internal/agent"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/sessions"
)

// httpTimeout bounds every outbound tool request on top of the turn context.
const httpTimeout = 10 * time.Second

// BuildRegistry assembles the tool registry for the given configuration.
// The clock and history-clearing tools are always present; Google Maps and
// Tavily tool groups join only when their API keys are configured.
func BuildRegistry(cfg *config.Config, store sessions.Store, userID string) (*agent.ToolRegistry, error) {
	client := &http.Client{Timeout: httpTimeout}

	tools := []agent.Tool{
		NewClockTool(),
		NewClearTool(store, userID),
	}

	if cfg.GoogleMapAPIKey != "" {
		maps := NewMapsClient(cfg.GoogleMapAPIKey, client)
		tools = append(tools,
			NewGeocodeTool(maps),
			NewWeatherTool(maps),
			NewWeatherForecastTool(maps),
			NewPlacesTool(maps),
		)
	}

	if cfg.TavilyAPIKey != "" {
		tavily := NewTavilyClient(cfg.TavilyAPIKey, client)
		tools = append(tools,
			NewTavilySearchTool(tavily),
			NewTavilyExtractTool(tavily),
		)
	}

	return agent.NewToolRegistry(tools...)
}
