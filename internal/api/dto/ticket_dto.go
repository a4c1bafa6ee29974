package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject" validate:"required,max=200"`
	Description string                `json:"description" validate:"required,max=10000"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
	PlanTier    domain.PlanTier       `json:"plan_tier" validate:"omitempty,max=50"`
	Tags        []string              `json:"tags" validate:"max=20,dive,required,max=50"`
	Attachments []string              `json:"attachments" validate:"max=10,dive,required,max=2048"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Content        string   `json:"content" validate:"required,max=10000"`
	IsInternalNote bool     `json:"is_internal_note"`
	Attachments    []string `json:"attachments" validate:"max=10,dive,required,max=2048"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.TicketStatus `json:"status" validate:"required,ticket_status"`
}

// CloseTicketRequest payload. The rating is optional at closure.
type CloseTicketRequest struct {
	SatisfactionRating *int    `json:"satisfaction_rating" validate:"omitempty,min=1,max=5"`
	Feedback           *string `json:"feedback" validate:"omitempty,max=2000"`
}

// RateTicketRequest payload.
type RateTicketRequest struct {
	SatisfactionRating int     `json:"satisfaction_rating" validate:"required,min=1,max=5"`
	Feedback           *string `json:"feedback" validate:"omitempty,max=2000"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                 string                `json:"id"`
	TicketNumber       string                `json:"ticket_number"`
	CustomerID         string                `json:"customer_id"`
	AgentID            *string               `json:"agent_id"`
	AgentName          *string               `json:"agent_name"`
	Subject            string                `json:"subject"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	PlanTier           domain.PlanTier       `json:"plan_tier"`
	Tags               []string              `json:"tags"`
	SLADeadline        *time.Time            `json:"sla_deadline"`
	FirstResponseAt    *time.Time            `json:"first_response_at"`
	ResolvedAt         *time.Time            `json:"resolved_at"`
	SatisfactionRating *int                  `json:"satisfaction_rating"`
	AutoClosed         bool                  `json:"auto_closed"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description   string                  `json:"description"`
	CustomerEmail string                  `json:"customer_email"`
	CustomerName  string                  `json:"customer_name"`
	Attachments   []string                `json:"attachments"`
	Feedback      *string                 `json:"feedback"`
	SLAStatus     string                  `json:"sla_status"`
	Messages      []TicketMessageResponse `json:"messages"`
	History       []TicketHistoryResponse `json:"history"`
}

// TicketMessageResponse represents a thread message.
type TicketMessageResponse struct {
	ID             string      `json:"id"`
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	SenderRole     domain.Role `json:"sender_role"`
	Content        string      `json:"content"`
	IsInternalNote bool        `json:"is_internal_note"`
	Attachments    []string    `json:"attachments"`
	CreatedAt      time.Time   `json:"created_at"`
	ReadAt         *time.Time  `json:"read_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByRole domain.Role             `json:"changed_by_role"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:                 t.ID,
		TicketNumber:       t.TicketNumber,
		CustomerID:         t.CustomerID,
		AgentID:            t.AgentID,
		AgentName:          t.AgentName,
		Subject:            t.Subject,
		Status:             t.Status,
		Priority:           t.Priority,
		PlanTier:           t.PlanTier,
		Tags:               nonNil(t.Tags),
		SLADeadline:        t.SLADeadline,
		FirstResponseAt:    t.FirstResponseAt,
		ResolvedAt:         t.ResolvedAt,
		SatisfactionRating: t.SatisfactionRating,
		AutoClosed:         t.AutoClosed,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

// NewTicketDetail maps a ticket with its thread and history.
func NewTicketDetail(t *domain.Ticket, slaStatus string, messages []domain.Message, history []domain.TicketHistory) TicketDetailResponse {
	msgs := make([]TicketMessageResponse, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, NewTicketMessage(&messages[i]))
	}
	entries := make([]TicketHistoryResponse, 0, len(history))
	for _, h := range history {
		entries = append(entries, TicketHistoryResponse{
			ID:            h.ID,
			ChangeType:    h.ChangeType,
			ChangedByRole: h.ChangedByRole,
			ChangedByID:   h.ChangedByID,
			OldValue:      h.OldValue,
			NewValue:      h.NewValue,
			CreatedAt:     h.CreatedAt,
		})
	}
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(t),
		Description:   t.Description,
		CustomerEmail: t.CustomerEmail,
		CustomerName:  t.CustomerName,
		Attachments:   nonNil(t.Attachments),
		Feedback:      t.Feedback,
		SLAStatus:     slaStatus,
		Messages:      msgs,
		History:       entries,
	}
}

// NewTicketMessage maps a message.
func NewTicketMessage(m *domain.Message) TicketMessageResponse {
	return TicketMessageResponse{
		ID:             m.ID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderRole:     m.SenderRole,
		Content:        m.Content,
		IsInternalNote: m.IsInternalNote,
		Attachments:    nonNil(m.Attachments),
		CreatedAt:      m.CreatedAt,
		ReadAt:         m.ReadAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
