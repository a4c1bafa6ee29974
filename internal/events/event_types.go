package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketMessageAdded  EventType = "ticket_message_added"
	EventTicketClosed        EventType = "ticket_closed"
	EventSLAWarning          EventType = "sla_warning"
	EventSLAWarningDigest    EventType = "sla_warning_digest"
	EventCustomerReminder    EventType = "customer_reminder"
	EventTicketsAutoClosed   EventType = "tickets_auto_closed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role domain.Role `json:"role"`
	ID   string      `json:"id"`
}

// ActorFrom converts a principal.
func ActorFrom(p domain.Principal) Actor {
	return Actor{Role: p.Role, ID: p.ID}
}

// Event represents a domain event emitted by services and sweeps.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh ID.
func New(eventType EventType, ticketID string, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber  string                `json:"ticket_number"`
	Subject       string                `json:"subject"`
	Priority      domain.TicketPriority `json:"priority"`
	CustomerEmail string                `json:"customer_email"`
	CustomerName  string                `json:"customer_name"`
	SLADeadline   *time.Time            `json:"sla_deadline,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	TicketNumber string              `json:"ticket_number"`
	OldStatus    domain.TicketStatus `json:"old_status"`
	NewStatus    domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	Subject      string                `json:"subject"`
	Priority     domain.TicketPriority `json:"priority"`
	AgentID      string                `json:"agent_id"`
	AgentName    string                `json:"agent_name"`
	AgentEmail   string                `json:"agent_email,omitempty"`
	Automatic    bool                  `json:"automatic"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID      string      `json:"message_id"`
	TicketNumber   string      `json:"ticket_number"`
	SenderRole     domain.Role `json:"sender_role"`
	SenderID       string      `json:"sender_id"`
	IsInternalNote bool        `json:"is_internal_note"`
	BodyPreview    string      `json:"body_preview"`
	CustomerEmail  string      `json:"customer_email"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	TicketNumber       string  `json:"ticket_number"`
	AgentID            *string `json:"agent_id,omitempty"`
	AutoClosed         bool    `json:"auto_closed"`
	SatisfactionRating *int    `json:"satisfaction_rating,omitempty"`
	CustomerEmail      string  `json:"customer_email"`
}

// SLAWarningPayload is the per-ticket warning sent to the assigned agent.
type SLAWarningPayload struct {
	TicketNumber string                `json:"ticket_number"`
	Subject      string                `json:"subject"`
	Priority     domain.TicketPriority `json:"priority"`
	AgentID      string                `json:"agent_id"`
	AgentEmail   string                `json:"agent_email,omitempty"`
	SLADeadline  time.Time             `json:"sla_deadline"`
	TimeLeft     time.Duration         `json:"time_left"`
}

// SLAWarningDigestPayload lists every at-risk ticket of one sweep run.
type SLAWarningDigestPayload struct {
	Tickets []SLAWarningPayload `json:"tickets"`
}

// CustomerReminderPayload asks a customer to respond to a waiting ticket.
type CustomerReminderPayload struct {
	TicketNumber  string `json:"ticket_number"`
	Subject       string `json:"subject"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
}

// TicketsAutoClosedPayload summarizes one auto-close sweep run.
type TicketsAutoClosedPayload struct {
	Count         int      `json:"count"`
	TicketNumbers []string `json:"ticket_numbers"`
}
