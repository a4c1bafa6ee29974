package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusWaiting    TicketStatus = "waiting"
	TicketStatusClosed     TicketStatus = "closed"
)

// ActiveStatuses are the non-terminal statuses counted as agent load.
var ActiveStatuses = []TicketStatus{TicketStatusNew, TicketStatusInProgress, TicketStatusWaiting}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusWaiting, TicketStatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed
}

// TicketPriority enumerates ticket urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Elevated reports whether the priority warrants an immediate alert.
func (p TicketPriority) Elevated() bool {
	return p == TicketPriorityHigh || p == TicketPriorityUrgent
}

// PlanTier is the customer's support plan; it selects the SLA response window.
type PlanTier string

const (
	PlanStandard     PlanTier = "standard"
	PlanProfessional PlanTier = "professional"
	PlanEnterprise   PlanTier = "enterprise"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	TicketNumber string
	Version      int64

	CustomerID    string
	CustomerEmail string
	CustomerName  string
	AgentID       *string
	AgentName     *string
	AgentEmail    *string

	Subject     string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	PlanTier    PlanTier
	Tags        []string
	Attachments []string

	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time
	FirstResponseAt *time.Time
	SLADeadline     *time.Time
	LastReminderAt  *time.Time

	TimeSpent          int64
	SatisfactionRating *int
	Feedback           *string
	AutoClosed         bool
}

// Assigned reports whether an agent owns the ticket.
func (t *Ticket) Assigned() bool {
	return t.AgentID != nil && *t.AgentID != ""
}

// Clone returns a deep copy so callers can keep a "before" snapshot.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.AgentID = cloneString(t.AgentID)
	c.AgentName = cloneString(t.AgentName)
	c.AgentEmail = cloneString(t.AgentEmail)
	c.Feedback = cloneString(t.Feedback)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	c.FirstResponseAt = cloneTime(t.FirstResponseAt)
	c.SLADeadline = cloneTime(t.SLADeadline)
	c.LastReminderAt = cloneTime(t.LastReminderAt)
	if t.SatisfactionRating != nil {
		r := *t.SatisfactionRating
		c.SatisfactionRating = &r
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Attachments != nil {
		c.Attachments = append([]string(nil), t.Attachments...)
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
