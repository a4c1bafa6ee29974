package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// DailyMetricsQuery is the query of GET /metrics/daily.
type DailyMetricsQuery struct {
	From string `json:"from" query:"from" validate:"required,date_key"`
	To   string `json:"to" query:"to" validate:"required,date_key"`
}

// AgentDayMetricResponse is one agent bucket of a day.
type AgentDayMetricResponse struct {
	TicketsOpened     int     `json:"tickets_opened"`
	TicketsClosed     int     `json:"tickets_closed"`
	TotalResponseTime float64 `json:"total_response_time"`
	ResponseCount     int     `json:"response_count"`
}

// DailyMetricResponse is one daily rollup.
type DailyMetricResponse struct {
	Date          string                            `json:"date"`
	TicketsOpened int                               `json:"tickets_opened"`
	TicketsClosed int                               `json:"tickets_closed"`
	SLACompliance float64                           `json:"sla_compliance"`
	AgentMetrics  map[string]AgentDayMetricResponse `json:"agent_metrics"`
	UpdatedAt     time.Time                         `json:"updated_at"`
}

// NewDailyMetrics maps rollups.
func NewDailyMetrics(metrics []domain.DailyMetric) []DailyMetricResponse {
	out := make([]DailyMetricResponse, 0, len(metrics))
	for _, m := range metrics {
		buckets := make(map[string]AgentDayMetricResponse, len(m.AgentMetrics))
		for agent, b := range m.AgentMetrics {
			buckets[agent] = AgentDayMetricResponse(b)
		}
		out = append(out, DailyMetricResponse{
			Date:          m.Date,
			TicketsOpened: m.TicketsOpened,
			TicketsClosed: m.TicketsClosed,
			SLACompliance: m.SLACompliance,
			AgentMetrics:  buckets,
			UpdatedAt:     m.UpdatedAt,
		})
	}
	return out
}
