package domain

import "time"

// UnassignedBucket groups tickets without an agent in daily rollups.
const UnassignedBucket = "unassigned"

// DateKeyLayout formats DailyMetric keys.
const DateKeyLayout = "2006-01-02"

// DailyMetric is the per-day rollup keyed by Date (YYYY-MM-DD).
type DailyMetric struct {
	Date          string
	TicketsOpened int
	TicketsClosed int
	SLACompliance float64
	AgentMetrics  map[string]AgentDayMetric
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AgentDayMetric is one agent bucket inside a DailyMetric.
type AgentDayMetric struct {
	TicketsOpened     int     `json:"ticketsOpened"`
	TicketsClosed     int     `json:"ticketsClosed"`
	TotalResponseTime float64 `json:"totalResponseTime"`
	ResponseCount     int     `json:"responseCount"`
}
