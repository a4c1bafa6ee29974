// Package agentmetrics maintains the running per-agent performance aggregates.
package agentmetrics

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ResponseRating buckets a first response time.
type ResponseRating string

const (
	ResponseExcellent ResponseRating = "excellent"
	ResponseGood      ResponseRating = "good"
	ResponseFair      ResponseRating = "fair"
	ResponsePoor      ResponseRating = "poor"
)

// ResponseTimeMinutes is the minutes between creation and first response,
// or 0 when no agent ever replied.
func ResponseTimeMinutes(t *domain.Ticket) float64 {
	if t.FirstResponseAt == nil {
		return 0
	}
	minutes := t.FirstResponseAt.Sub(t.CreatedAt).Minutes()
	if minutes < 0 {
		return 0
	}
	return minutes
}

// RateResponseTime buckets minutes into a rating band.
func RateResponseTime(minutes float64) ResponseRating {
	switch {
	case minutes <= 15:
		return ResponseExcellent
	case minutes <= 30:
		return ResponseGood
	case minutes <= 60:
		return ResponseFair
	default:
		return ResponsePoor
	}
}

// Closure is the input for one ticket closure.
type Closure struct {
	ResponseTime float64
	Rating       *int
	ClosedAt     time.Time
}

// ClosureFromTicket extracts the accumulator input from a closed ticket.
func ClosureFromTicket(t *domain.Ticket) Closure {
	c := Closure{ResponseTime: ResponseTimeMinutes(t), Rating: t.SatisfactionRating}
	if t.ResolvedAt != nil {
		c.ClosedAt = *t.ResolvedAt
	}
	return c
}

// Accumulate folds one closure into m and returns the new aggregate.
// A zero response time leaves the average and its denominator untouched.
func Accumulate(m domain.AgentMetrics, c Closure) domain.AgentMetrics {
	out := m
	if c.ResponseTime > 0 {
		out.AvgResponseTime = (m.AvgResponseTime*float64(m.ResponseCount) + c.ResponseTime) / float64(m.ResponseCount+1)
		out.ResponseCount = m.ResponseCount + 1
	}
	if c.Rating != nil {
		out = AccumulateRating(out, *c.Rating)
	}
	out.TicketsClosed = m.TicketsClosed + 1
	if !c.ClosedAt.IsZero() {
		closedAt := c.ClosedAt
		out.LastTicketClosedAt = &closedAt
	}
	return out
}

// AccumulateRating folds a single satisfaction rating into m.
func AccumulateRating(m domain.AgentMetrics, rating int) domain.AgentMetrics {
	out := m
	out.TotalRatings = m.TotalRatings + 1
	if out.TotalRatings == 0 {
		return out
	}
	out.CSATScore = (m.CSATScore*float64(m.TotalRatings) + float64(rating)) / float64(out.TotalRatings)
	return out
}
