package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/agentmetrics"
	"github.com/spec-kit/helpdesk-service/internal/assignment"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// UpsertAgentRequest payload for PUT /agents/:id.
type UpsertAgentRequest struct {
	Name     string      `json:"name" validate:"required,max=200"`
	Email    string      `json:"email" validate:"omitempty,email"`
	Role     domain.Role `json:"role" validate:"required,staff_role"`
	Skills   []string    `json:"skills" validate:"max=50,dive,required,max=50"`
	IsActive *bool       `json:"is_active" validate:"required"`
}

// AgentMetricsResponse is the running aggregate of an agent.
type AgentMetricsResponse struct {
	TicketsClosed      int64      `json:"tickets_closed"`
	AvgResponseTime    float64    `json:"avg_response_time"`
	ResponseRating     string     `json:"response_rating"`
	CSATScore          float64    `json:"csat_score"`
	TotalRatings       int64      `json:"total_ratings"`
	LastTicketClosedAt *time.Time `json:"last_ticket_closed_at"`
}

// AgentResponse describes an agent.
type AgentResponse struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Email     string               `json:"email"`
	Role      domain.Role          `json:"role"`
	Skills    []string             `json:"skills"`
	IsActive  bool                 `json:"is_active"`
	Metrics   AgentMetricsResponse `json:"metrics"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// TicketMetricResponse is one per-ticket performance record.
type TicketMetricResponse struct {
	TicketID           string    `json:"ticket_id"`
	TicketNumber       string    `json:"ticket_number"`
	ResponseTime       float64   `json:"response_time"`
	ResponseRating     string    `json:"response_rating"`
	SatisfactionRating *int      `json:"satisfaction_rating"`
	TimeSpent          int64     `json:"time_spent"`
	ClosedAt           time.Time `json:"closed_at"`
}

// AgentPerformanceResponse bundles an agent with its ticket records.
type AgentPerformanceResponse struct {
	Agent   AgentResponse          `json:"agent"`
	Tickets []TicketMetricResponse `json:"tickets"`
}

// WorkloadEntry is one row of the assignment ranking.
type WorkloadEntry struct {
	AgentID    string `json:"agent_id"`
	Name       string `json:"name"`
	ActiveLoad int    `json:"active_load"`
}

// NewAgentResponse maps an agent.
func NewAgentResponse(a *domain.Agent) AgentResponse {
	return AgentResponse{
		ID:       a.ID,
		Name:     a.Name,
		Email:    a.Email,
		Role:     a.Role,
		Skills:   nonNil(a.Skills),
		IsActive: a.IsActive,
		Metrics: AgentMetricsResponse{
			TicketsClosed:      a.Metrics.TicketsClosed,
			AvgResponseTime:    a.Metrics.AvgResponseTime,
			ResponseRating:     string(agentmetrics.RateResponseTime(a.Metrics.AvgResponseTime)),
			CSATScore:          a.Metrics.CSATScore,
			TotalRatings:       a.Metrics.TotalRatings,
			LastTicketClosedAt: a.Metrics.LastTicketClosedAt,
		},
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// NewAgentPerformance maps an agent and its records.
func NewAgentPerformance(a *domain.Agent, records []domain.TicketMetric) AgentPerformanceResponse {
	items := make([]TicketMetricResponse, 0, len(records))
	for _, r := range records {
		items = append(items, TicketMetricResponse{
			TicketID:           r.TicketID,
			TicketNumber:       r.TicketNumber,
			ResponseTime:       r.ResponseTime,
			ResponseRating:     string(agentmetrics.RateResponseTime(r.ResponseTime)),
			SatisfactionRating: r.SatisfactionRating,
			TimeSpent:          r.TimeSpent,
			ClosedAt:           r.ClosedAt,
		})
	}
	return AgentPerformanceResponse{Agent: NewAgentResponse(a), Tickets: items}
}

// NewWorkload maps the assignment ranking.
func NewWorkload(candidates []assignment.Candidate) []WorkloadEntry {
	out := make([]WorkloadEntry, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, WorkloadEntry{AgentID: c.Agent.ID, Name: c.Agent.Name, ActiveLoad: c.Load})
	}
	return out
}
