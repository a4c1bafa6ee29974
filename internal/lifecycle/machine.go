// Package lifecycle validates and applies ticket status transitions.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Action is the trigger behind a transition.
type Action string

const (
	ActionAssign        Action = "assign"
	ActionAgentReply    Action = "agent_reply"
	ActionCustomerReply Action = "customer_reply"
	ActionSetStatus     Action = "set_status"
	ActionClose         Action = "close"
	// ActionNote records staff activity (an internal note) without moving status.
	ActionNote Action = "note"
)

// Transition describes one requested change to a ticket.
type Transition struct {
	Action Action
	At     time.Time

	// ActionSetStatus
	Status domain.TicketStatus

	// ActionAssign
	AgentID    string
	AgentName  string
	AgentEmail string

	// ActionClose
	Rating     *int
	Feedback   *string
	AutoClosed bool
}

// Result summarizes what Apply changed.
type Result struct {
	From             domain.TicketStatus
	To               domain.TicketStatus
	FirstResponseSet bool
	Closed           bool
	AgentChanged     bool
	PreviousAgentID  *string
}

// StatusChanged reports whether the status moved.
func (r Result) StatusChanged() bool {
	return r.From != r.To
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:        {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusInProgress: {domain.TicketStatusWaiting, domain.TicketStatusClosed},
	domain.TicketStatusWaiting:    {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {},
}

// CanTransition reports whether current may move to next.
func CanTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Apply validates tr against t and mutates t in place. On error t is untouched.
// Every successful call sets UpdatedAt to tr.At.
func Apply(t *domain.Ticket, tr Transition) (Result, error) {
	res := Result{From: t.Status, To: t.Status}
	if tr.At.IsZero() {
		return res, apperrors.NewValidationError("transition time required", nil)
	}
	if t.Status.Terminal() {
		return res, invalid(t.Status, tr, "ticket is closed")
	}

	switch tr.Action {
	case ActionAssign:
		if tr.AgentID == "" {
			return res, apperrors.NewValidationError("agent id required", nil)
		}
		res.AgentChanged = t.AgentID == nil || *t.AgentID != tr.AgentID
		res.PreviousAgentID = t.AgentID
		agentID, agentName := tr.AgentID, tr.AgentName
		t.AgentID = &agentID
		t.AgentName = &agentName
		if tr.AgentEmail != "" {
			email := tr.AgentEmail
			t.AgentEmail = &email
		} else {
			t.AgentEmail = nil
		}
		if t.Status == domain.TicketStatusNew {
			res.FirstResponseSet = start(t, tr.At)
		}

	case ActionAgentReply:
		if t.Status == domain.TicketStatusNew {
			res.FirstResponseSet = start(t, tr.At)
		} else {
			res.FirstResponseSet = markFirstResponse(t, tr.At)
		}

	case ActionCustomerReply:
		if t.Status == domain.TicketStatusWaiting {
			t.Status = domain.TicketStatusInProgress
		}

	case ActionNote:

	case ActionSetStatus:
		if tr.Status == domain.TicketStatusClosed {
			return Apply(t, Transition{Action: ActionClose, At: tr.At})
		}
		if !tr.Status.Valid() || !CanTransition(t.Status, tr.Status) {
			return res, invalid(t.Status, tr, fmt.Sprintf("cannot move from %s to %s", t.Status, tr.Status))
		}
		if tr.Status == domain.TicketStatusInProgress && t.Status == domain.TicketStatusNew {
			res.FirstResponseSet = start(t, tr.At)
		} else {
			t.Status = tr.Status
		}

	case ActionClose:
		if tr.Rating != nil {
			if err := ValidateRating(*tr.Rating); err != nil {
				return res, err
			}
			rating := *tr.Rating
			t.SatisfactionRating = &rating
		}
		if tr.Feedback != nil {
			feedback := *tr.Feedback
			t.Feedback = &feedback
		}
		resolvedAt := tr.At
		t.Status = domain.TicketStatusClosed
		t.ResolvedAt = &resolvedAt
		t.AutoClosed = tr.AutoClosed
		res.Closed = true

	default:
		return res, apperrors.NewValidationError(fmt.Sprintf("unknown action %q", tr.Action), nil)
	}

	t.UpdatedAt = tr.At
	res.To = t.Status
	return res, nil
}

// Rate attaches a rating and optional feedback to a closed, unrated ticket
// within window of its resolution.
func Rate(t *domain.Ticket, rating int, feedback *string, at time.Time, window time.Duration) error {
	if err := ValidateRating(rating); err != nil {
		return err
	}
	if t.Status != domain.TicketStatusClosed || t.ResolvedAt == nil {
		return apperrors.NewInvalidTransition("only closed tickets can be rated", map[string]any{"status": t.Status})
	}
	if t.SatisfactionRating != nil {
		return apperrors.NewInvalidTransition("ticket already rated", nil)
	}
	if window > 0 && at.Sub(*t.ResolvedAt) > window {
		return apperrors.NewInvalidTransition("rating window has elapsed", map[string]any{"resolved_at": t.ResolvedAt})
	}
	t.SatisfactionRating = &rating
	if feedback != nil {
		fb := *feedback
		t.Feedback = &fb
	}
	t.UpdatedAt = at
	return nil
}

// ValidateRating accepts 1 through 5.
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return apperrors.NewValidationError("satisfaction rating must be between 1 and 5", map[string]any{"rating": rating})
	}
	return nil
}

// CheckInvariants verifies the structural ticket invariants.
func CheckInvariants(t *domain.Ticket) error {
	closed := t.Status == domain.TicketStatusClosed
	if closed != (t.ResolvedAt != nil) {
		return fmt.Errorf("resolvedAt set=%v but status=%s", t.ResolvedAt != nil, t.Status)
	}
	if t.FirstResponseAt != nil && t.FirstResponseAt.Before(t.CreatedAt) {
		return fmt.Errorf("firstResponseAt precedes createdAt")
	}
	if t.SatisfactionRating != nil && !closed {
		return fmt.Errorf("rating present on %s ticket", t.Status)
	}
	if t.TimeSpent < 0 {
		return fmt.Errorf("negative timeSpent")
	}
	return nil
}

func start(t *domain.Ticket, at time.Time) bool {
	t.Status = domain.TicketStatusInProgress
	return markFirstResponse(t, at)
}

// markFirstResponse sets FirstResponseAt once; it is never moved afterwards.
func markFirstResponse(t *domain.Ticket, at time.Time) bool {
	if t.FirstResponseAt != nil {
		return false
	}
	v := at
	t.FirstResponseAt = &v
	return true
}

func invalid(from domain.TicketStatus, tr Transition, msg string) error {
	return apperrors.NewInvalidTransition(msg, map[string]any{
		"from":   from,
		"action": tr.Action,
		"target": tr.Status,
	})
}
