package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// Metrics holds the Prometheus instruments exposed on /metrics.
type Metrics struct {
	// Turns counts completed conversation turns by finish reason.
	Turns *prometheus.CounterVec

	// ToolInvocations counts tool calls issued by the model.
	ToolInvocations *prometheus.CounterVec

	// HTTPRequests counts HTTP requests by method, path, and status code.
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates and registers the instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatrelay_turns_total",
				Help: "Total number of conversation turns by finish reason",
			},
			[]string{"finish_reason"},
		),
		ToolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatrelay_tool_invocations_total",
				Help: "Total number of tool invocations by tool name",
			},
			[]string{"tool_name"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatrelay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// ObserveTurn records the outcome of one turn.
func (m *Metrics) ObserveTurn(result *models.TurnResult) {
	if m == nil || result == nil {
		return
	}
	m.Turns.WithLabelValues(string(result.FinishReason)).Inc()
	for _, tool := range result.ToolsInvoked {
		m.ToolInvocations.WithLabelValues(tool).Inc()
	}
}
