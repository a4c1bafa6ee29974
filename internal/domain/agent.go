package domain

import "time"

// Agent models a support agent or manager together with the performance
// counters owned by the metrics accumulator.
type Agent struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Skills    []string
	IsActive  bool
	Metrics   AgentMetrics
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Eligible reports whether the agent can receive new tickets.
func (a *Agent) Eligible() bool {
	return a.IsActive && a.Role.Staff()
}

// AgentMetrics holds running aggregates for an agent. Version guards
// conditional writes; ResponseCount is the denominator of AvgResponseTime.
type AgentMetrics struct {
	TicketsClosed      int64
	AvgResponseTime    float64
	ResponseCount      int64
	CSATScore          float64
	TotalRatings       int64
	LastTicketClosedAt *time.Time
	Version            int64
}

// TicketMetric is the append-only audit record written once per closed ticket.
type TicketMetric struct {
	TicketID           string
	TicketNumber       string
	AgentID            string
	ResponseTime       float64
	SatisfactionRating *int
	TimeSpent          int64
	ClosedAt           time.Time
}
