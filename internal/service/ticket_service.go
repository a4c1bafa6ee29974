package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/agentmetrics"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lifecycle"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	defaultUpdateTries = 5
	ticketNumberTries  = 3
	previewLength      = 120
)

// errSkip aborts a mutation without writing and without reporting an error.
var errSkip = errors.New("mutation skipped")

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets      repository.TicketRepository
	messages     repository.MessageRepository
	history      repository.TicketHistoryRepository
	assignment   *AssignmentService
	recorder     *agentmetrics.Recorder
	sla          *sla.Policy
	dispatcher   events.Dispatcher
	clock        clock.Clock
	metrics      *observability.Metrics
	logger       *zap.Logger
	ratingWindow time.Duration
	updateTries  uint
	newBackOff   func() backoff.BackOff
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.MessageRepository
	HistoryRepo  repository.TicketHistoryRepository
	Assignment   *AssignmentService
	Recorder     *agentmetrics.Recorder
	SLA          *sla.Policy
	Dispatcher   events.Dispatcher
	Clock        clock.Clock
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	RatingWindow time.Duration
	// UpdateTries bounds retries of a ticket write that lost a version race.
	UpdateTries int
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	Priority    domain.TicketPriority
	PlanTier    domain.PlanTier
	Tags        []string
	Attachments []string
}

// TicketListFilter describes listing filters. Customers are always scoped to
// their own tickets.
type TicketListFilter struct {
	AgentID     *string
	Unassigned  bool
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// MessageInput describes a reply or internal note.
type MessageInput struct {
	Content        string
	IsInternalNote bool
	Attachments    []string
}

// CloseInput carries the optional rating given at closure.
type CloseInput struct {
	Rating   *int
	Feedback *string
}

// TicketView is a ticket with the thread, history and SLA state visible to a caller.
type TicketView struct {
	Ticket    *domain.Ticket
	Messages  []domain.Message
	History   []domain.TicketHistory
	SLAStatus sla.Status
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	policy := deps.SLA
	if policy == nil {
		policy = sla.DefaultPolicy()
	}
	tries := deps.UpdateTries
	if tries < 1 {
		tries = defaultUpdateTries
	}
	return &TicketService{
		tickets:      deps.TicketRepo,
		messages:     deps.MessageRepo,
		history:      deps.HistoryRepo,
		assignment:   deps.Assignment,
		recorder:     deps.Recorder,
		sla:          policy,
		dispatcher:   deps.Dispatcher,
		clock:        clk,
		metrics:      deps.Metrics,
		logger:       logger,
		ratingWindow: deps.RatingWindow,
		updateTries:  uint(tries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
}

// CreateTicket opens a ticket for the calling customer, fixes its SLA
// deadline and runs the creation handler.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if actor.ID == "" {
		return nil, apperrors.NewUnauthorized("customer identity required")
	}
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	if subject == "" || description == "" {
		return nil, apperrors.NewValidationError("subject and description are required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	now := s.clock.Now()
	tier := s.sla.ResolveTier(input.PlanTier)
	deadline := s.sla.ComputeDeadline(now, tier)
	ticket := &domain.Ticket{
		CustomerID:    actor.ID,
		CustomerEmail: actor.Email,
		CustomerName:  actor.Name,
		Subject:       subject,
		Description:   description,
		Status:        domain.TicketStatusNew,
		Priority:      priority,
		PlanTier:      tier,
		Tags:          input.Tags,
		Attachments:   input.Attachments,
		CreatedAt:     now,
		UpdatedAt:     now,
		SLADeadline:   &deadline,
	}

	var err error
	for attempt := 0; attempt < ticketNumberTries; attempt++ {
		ticket.TicketNumber = lifecycle.TicketNumber(now)
		if err = s.tickets.Create(ctx, ticket); !errors.Is(err, repository.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, storeError("ticket", "", err)
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("priority", string(ticket.Priority)),
		zap.String("plan_tier", string(tier)))

	s.publish(ctx, events.New(events.EventTicketCreated, ticket.ID, events.ActorFrom(actor), now, events.TicketCreatedPayload{
		TicketNumber:  ticket.TicketNumber,
		Subject:       ticket.Subject,
		Priority:      ticket.Priority,
		CustomerEmail: ticket.CustomerEmail,
		CustomerName:  ticket.CustomerName,
		SLADeadline:   ticket.SLADeadline,
	}))

	if err := s.HandleTicketCreated(ctx, ticket); err != nil {
		s.logger.Warn("ticket creation handler failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	if latest, err := s.tickets.GetByID(ctx, ticket.ID); err == nil {
		ticket = latest
	}
	return ticket, nil
}

// HandleTicketCreated auto-assigns a ticket that arrived without an agent.
// An empty candidate pool leaves the ticket unassigned and is not an error.
// Redelivery for an already assigned ticket is a no-op.
func (s *TicketService) HandleTicketCreated(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.Assigned() || s.assignment == nil {
		return nil
	}
	_, err := s.autoAssign(ctx, domain.SystemPrincipal, ticket.ID)
	switch {
	case err == nil, errors.Is(err, errSkip):
		return nil
	case errors.Is(err, apperrors.ErrNoEligibleAgent):
		s.logger.Info("no eligible agent; ticket left unassigned", zap.String("ticket_id", ticket.ID))
		return nil
	}
	return err
}

// HandleTicketUpdated reacts to a stored change. A transition into closed
// records closure metrics for the assigned agent; the recorder ignores a
// closure it has already applied, so redelivery is safe.
func (s *TicketService) HandleTicketUpdated(ctx context.Context, before, after *domain.Ticket) error {
	if before == nil || after == nil || s.recorder == nil {
		return nil
	}
	if before.Status == domain.TicketStatusClosed || after.Status != domain.TicketStatusClosed {
		return nil
	}
	if _, err := s.recorder.RecordClosure(ctx, after); err != nil {
		return apperrors.NewDependencyUnavailable("performance store", err)
	}
	return nil
}

// ListTickets returns tickets visible to actor.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Principal, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		AgentID:     filter.AgentID,
		Unassigned:  filter.Unassigned,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if !actor.Role.Staff() {
		customerID := actor.ID
		repoFilter.CustomerID = &customerID
		repoFilter.AgentID = nil
		repoFilter.Unassigned = false
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, storeError("ticket", "", err)
	}
	return tickets, nil
}

// GetTicket returns a ticket with its thread. Customers see neither internal
// notes nor assignment history.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Principal, ticketID string) (*TicketView, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError("ticket", ticketID, err)
	}
	if err := authorize(actor, ticket); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID, actor.Role.Staff())
	if err != nil {
		return nil, storeError("message", "", err)
	}
	view := &TicketView{
		Ticket:    ticket,
		Messages:  msgs,
		History:   []domain.TicketHistory{},
		SLAStatus: s.sla.EvaluateTicket(s.clock.Now(), ticket),
	}
	if s.history == nil {
		return view, nil
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, storeError("ticket history", "", err)
	}
	for _, entry := range history {
		if actor.Role.Staff() || entry.ChangeType == domain.ChangeTypeStatus {
			view.History = append(view.History, entry)
		}
	}
	return view, nil
}

// AddMessage appends a reply or internal note. The ticket is updated first so
// the message never lands on a ticket that rejected it: an agent reply starts
// work and marks the first response, a customer reply reopens a waiting ticket.
// A closed ticket stays frozen; the message is stored without a transition.
func (s *TicketService) AddMessage(ctx context.Context, actor domain.Principal, ticketID string, input MessageInput) (*domain.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.NewValidationError("message content is required", nil)
	}
	if input.IsInternalNote && !actor.Role.Staff() {
		return nil, apperrors.NewForbidden("customers cannot post internal notes")
	}

	action := lifecycle.ActionCustomerReply
	switch {
	case input.IsInternalNote:
		action = lifecycle.ActionNote
	case actor.Role.Staff():
		action = lifecycle.ActionAgentReply
	}

	at := s.clock.Now()
	ticket, _, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		if err := authorize(actor, t); err != nil {
			return lifecycle.Result{}, err
		}
		if t.Status.Terminal() {
			return lifecycle.Result{}, errSkip
		}
		return lifecycle.Apply(t, lifecycle.Transition{Action: action, At: at})
	})
	if errors.Is(err, errSkip) {
		ticket, err = s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return nil, storeError("ticket", ticketID, err)
		}
	} else if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		TicketID:       ticket.ID,
		SenderID:       actor.ID,
		SenderName:     actor.Name,
		SenderRole:     actor.Role,
		Content:        content,
		IsInternalNote: input.IsInternalNote,
		Attachments:    input.Attachments,
		CreatedAt:      at,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, storeError("message", "", err)
	}
	s.publish(ctx, events.New(events.EventTicketMessageAdded, ticket.ID, events.ActorFrom(actor), at, events.TicketMessageAddedPayload{
		MessageID:      msg.ID,
		TicketNumber:   ticket.TicketNumber,
		SenderRole:     msg.SenderRole,
		SenderID:       msg.SenderID,
		IsInternalNote: msg.IsInternalNote,
		BodyPreview:    stringPreview(msg.Content, previewLength),
		CustomerEmail:  ticket.CustomerEmail,
	}))
	return msg, nil
}

// MarkMessageRead sets the read marker of a message once.
func (s *TicketService) MarkMessageRead(ctx context.Context, actor domain.Principal, ticketID, messageID string) (*domain.Message, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError("ticket", ticketID, err)
	}
	if err := authorize(actor, ticket); err != nil {
		return nil, err
	}
	msg, err := s.messages.GetByID(ctx, ticketID, messageID)
	if err != nil {
		return nil, storeError("message", messageID, err)
	}
	if !msg.VisibleTo(actor.Role) {
		return nil, apperrors.NewNotFound("message", map[string]any{"message_id": messageID})
	}
	msg, err = s.messages.MarkRead(ctx, ticketID, messageID, s.clock.Now())
	if err != nil {
		return nil, storeError("message", messageID, err)
	}
	return msg, nil
}

// Claim assigns the ticket to the calling agent.
func (s *TicketService) Claim(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	if !actor.Role.Staff() {
		return nil, apperrors.NewForbidden("only agents can claim tickets")
	}
	agent, err := s.assignment.ResolveAssignee(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	at := s.clock.Now()
	ticket, res, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		if t.Assigned() && *t.AgentID != agent.ID {
			return lifecycle.Result{}, apperrors.NewInvalidTransition("ticket already assigned", map[string]any{"agent_id": *t.AgentID})
		}
		return lifecycle.Apply(t, assignTransition(agent, at))
	})
	if err != nil {
		return nil, err
	}
	s.publishAssigned(ctx, actor, ticket, res, false)
	return ticket, nil
}

// Assign hands the ticket to agentID. Managers only.
func (s *TicketService) Assign(ctx context.Context, actor domain.Principal, ticketID, agentID string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleManager {
		return nil, apperrors.NewForbidden("only managers can assign tickets")
	}
	agent, err := s.assignment.ResolveAssignee(ctx, agentID)
	if err != nil {
		return nil, err
	}
	at := s.clock.Now()
	ticket, res, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		return lifecycle.Apply(t, assignTransition(agent, at))
	})
	if err != nil {
		return nil, err
	}
	s.publishAssigned(ctx, actor, ticket, res, false)
	return ticket, nil
}

// AutoAssign runs the assignment policy for an unassigned ticket on demand.
func (s *TicketService) AutoAssign(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleManager {
		return nil, apperrors.NewForbidden("only managers can trigger auto-assignment")
	}
	ticket, err := s.autoAssign(ctx, actor, ticketID)
	if errors.Is(err, errSkip) {
		return nil, apperrors.NewInvalidTransition("ticket already assigned", map[string]any{"ticket_id": ticketID})
	}
	return ticket, err
}

func (s *TicketService) autoAssign(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	agent, err := s.assignment.SelectLeastLoaded(ctx)
	if err != nil {
		return nil, err
	}
	at := s.clock.Now()
	ticket, res, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		if t.Assigned() {
			return lifecycle.Result{}, errSkip
		}
		return lifecycle.Apply(t, assignTransition(agent, at))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket auto-assigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("agent_id", agent.ID))
	s.publishAssigned(ctx, actor, ticket, res, true)
	return ticket, nil
}

// ChangeStatus applies an explicit status change by staff.
func (s *TicketService) ChangeStatus(ctx context.Context, actor domain.Principal, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if !actor.Role.Staff() {
		return nil, apperrors.NewForbidden("only agents can change ticket status")
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	at := s.clock.Now()
	ticket, _, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		return lifecycle.Apply(t, lifecycle.Transition{Action: lifecycle.ActionSetStatus, Status: status, At: at})
	})
	return ticket, err
}

// Close closes a ticket. Only the ticket's customer may attach a rating.
func (s *TicketService) Close(ctx context.Context, actor domain.Principal, ticketID string, input CloseInput) (*domain.Ticket, error) {
	if input.Rating != nil && actor.Role != domain.RoleCustomer {
		return nil, apperrors.NewForbidden("only the customer can rate a ticket")
	}
	if input.Rating != nil {
		if err := lifecycle.ValidateRating(*input.Rating); err != nil {
			return nil, err
		}
	}
	at := s.clock.Now()
	ticket, _, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		if err := authorize(actor, t); err != nil {
			return lifecycle.Result{}, err
		}
		return lifecycle.Apply(t, lifecycle.Transition{
			Action:   lifecycle.ActionClose,
			At:       at,
			Rating:   input.Rating,
			Feedback: input.Feedback,
		})
	})
	return ticket, err
}

// RateTicket attaches a late rating to a closed ticket and folds it into the
// agent's satisfaction score.
func (s *TicketService) RateTicket(ctx context.Context, actor domain.Principal, ticketID string, rating int, feedback *string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleCustomer {
		return nil, apperrors.NewForbidden("only the customer can rate a ticket")
	}
	at := s.clock.Now()
	ticket, _, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		if err := authorize(actor, t); err != nil {
			return lifecycle.Result{}, err
		}
		res := lifecycle.Result{From: t.Status, To: t.Status}
		return res, lifecycle.Rate(t, rating, feedback, at, s.ratingWindow)
	})
	if err != nil {
		return nil, err
	}
	s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypeRating, nil, map[string]any{"satisfaction_rating": rating})
	if ticket.Assigned() && s.recorder != nil {
		if err := s.recorder.RecordRating(ctx, *ticket.AgentID, rating); err != nil {
			s.logger.Error("recording rating failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("agent_id", *ticket.AgentID),
				zap.Error(err))
		}
	}
	return ticket, nil
}

// CloseStale auto-closes ticketID when it is still open and idle since before
// cutoff at write time. ok is false when the ticket no longer qualifies.
func (s *TicketService) CloseStale(ctx context.Context, ticketID string, cutoff time.Time) (*domain.Ticket, bool, error) {
	at := s.clock.Now()
	ticket, _, err := s.mutate(ctx, domain.SystemPrincipal, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		if t.Status.Terminal() || !t.UpdatedAt.Before(cutoff) {
			return lifecycle.Result{}, errSkip
		}
		return lifecycle.Apply(t, lifecycle.Transition{Action: lifecycle.ActionClose, At: at, AutoClosed: true})
	})
	if errors.Is(err, errSkip) {
		return nil, false, nil
	}
	if err != nil {
		// A stored closure whose metrics failed still reports ok.
		return ticket, ticket != nil, err
	}
	return ticket, true, nil
}

// ReconcileClosure records the agent metrics of a closed ticket whose closure
// was stored but never accumulated. It reports whether metrics were applied;
// tickets already recorded, unassigned or still open are left alone.
func (s *TicketService) ReconcileClosure(ctx context.Context, ticketID string) (bool, error) {
	if s.recorder == nil {
		return false, nil
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return false, storeError("ticket", ticketID, err)
	}
	if ticket.Status != domain.TicketStatusClosed || !ticket.Assigned() {
		return false, nil
	}
	recorded, err := s.recorder.Recorded(ctx, ticket.ID)
	if err != nil {
		return false, apperrors.NewDependencyUnavailable("performance store", err)
	}
	if recorded {
		return false, nil
	}
	applied, err := s.recorder.RecordClosure(ctx, ticket)
	if err != nil {
		return false, apperrors.NewDependencyUnavailable("performance store", err)
	}
	if applied {
		s.logger.Info("closure metrics reconciled", zap.String("ticket_id", ticket.ID), zap.String("agent_id", *ticket.AgentID))
	}
	return applied, nil
}

// RecordReminder stamps lastReminderAt. It does not bump updatedAt, so the
// inactivity clocks keep running.
func (s *TicketService) RecordReminder(ctx context.Context, ticketID string, at time.Time) error {
	_, _, err := s.mutate(ctx, domain.SystemPrincipal, ticketID, func(t *domain.Ticket) (lifecycle.Result, error) {
		stamp := at
		t.LastReminderAt = &stamp
		return lifecycle.Result{From: t.Status, To: t.Status}, nil
	})
	return err
}

type mutation func(t *domain.Ticket) (lifecycle.Result, error)

// mutate loads the ticket, applies fn and writes it back under the loaded
// version. A lost version race reloads and reapplies fn, so fn always sees the
// state it is about to overwrite.
func (s *TicketService) mutate(ctx context.Context, actor domain.Principal, ticketID string, fn mutation) (*domain.Ticket, lifecycle.Result, error) {
	var (
		before, after *domain.Ticket
		result        lifecycle.Result
	)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		current, err := s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return struct{}{}, backoff.Permanent(storeError("ticket", ticketID, err))
		}
		snapshot := current.Clone()
		res, err := fn(current)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if err := s.tickets.Update(ctx, current, snapshot.Version); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				s.logger.Debug("ticket version conflict; retrying", zap.String("ticket_id", ticketID))
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(storeError("ticket", ticketID, err))
		}
		before, after, result = snapshot, current, res
		return struct{}{}, nil
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(s.updateTries))
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.Is(err, repository.ErrConflict) && !errors.As(err, &domainErr) {
			return nil, result, apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticketID})
		}
		return nil, result, err
	}

	// The change is stored; an update handler failure is returned with it.
	if err := s.afterUpdate(ctx, actor, before, after, result); err != nil {
		return after, result, err
	}
	return after, result, nil
}

// afterUpdate records history, emits events and runs the update handler.
// None of its failures undo the stored change. A failed update handler is
// returned so the caller sees the dependency outage and can retry.
func (s *TicketService) afterUpdate(ctx context.Context, actor domain.Principal, before, after *domain.Ticket, res lifecycle.Result) error {
	at := after.UpdatedAt
	if res.StatusChanged() {
		s.metrics.RecordTransition(string(res.From), string(res.To))
		s.recordHistory(ctx, actor, after.ID, domain.ChangeTypeStatus,
			map[string]any{"status": res.From},
			map[string]any{"status": res.To})
		s.publish(ctx, events.New(events.EventTicketStatusChanged, after.ID, events.ActorFrom(actor), at, events.TicketStatusChangedPayload{
			TicketNumber: after.TicketNumber,
			OldStatus:    res.From,
			NewStatus:    res.To,
		}))
	}
	if res.AgentChanged {
		var previous any
		if res.PreviousAgentID != nil {
			previous = *res.PreviousAgentID
		}
		s.recordHistory(ctx, actor, after.ID, domain.ChangeTypeAssignee,
			map[string]any{"agent_id": previous},
			map[string]any{"agent_id": *after.AgentID})
	}
	if res.Closed {
		s.logger.Info("ticket closed",
			zap.String("ticket_id", after.ID),
			zap.Bool("auto_closed", after.AutoClosed),
			zap.String("actor", actor.ID))
		s.publish(ctx, events.New(events.EventTicketClosed, after.ID, events.ActorFrom(actor), at, events.TicketClosedPayload{
			TicketNumber:       after.TicketNumber,
			AgentID:            after.AgentID,
			AutoClosed:         after.AutoClosed,
			SatisfactionRating: after.SatisfactionRating,
			CustomerEmail:      after.CustomerEmail,
		}))
	}
	if err := s.HandleTicketUpdated(ctx, before, after); err != nil {
		s.logger.Error("ticket update handler failed", zap.String("ticket_id", after.ID), zap.Error(err))
		return err
	}
	return nil
}

func (s *TicketService) publishAssigned(ctx context.Context, actor domain.Principal, t *domain.Ticket, res lifecycle.Result, automatic bool) {
	if !res.AgentChanged || !t.Assigned() {
		return
	}
	payload := events.TicketAssignedPayload{
		TicketNumber: t.TicketNumber,
		Subject:      t.Subject,
		Priority:     t.Priority,
		AgentID:      *t.AgentID,
		Automatic:    automatic,
	}
	if t.AgentName != nil {
		payload.AgentName = *t.AgentName
	}
	if t.AgentEmail != nil {
		payload.AgentEmail = *t.AgentEmail
	}
	s.publish(ctx, events.New(events.EventTicketAssigned, t.ID, events.ActorFrom(actor), t.UpdatedAt, payload))
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event delivery incomplete",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func (s *TicketService) recordHistory(ctx context.Context, actor domain.Principal, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	var changedBy *string
	if actor.ID != "" {
		id := actor.ID
		changedBy = &id
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByRole: actor.Role,
		ChangedByID:   changedBy,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("ticket history write failed",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(change)),
			zap.Error(err))
	}
}

func assignTransition(agent *domain.Agent, at time.Time) lifecycle.Transition {
	return lifecycle.Transition{
		Action:     lifecycle.ActionAssign,
		At:         at,
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		AgentEmail: agent.Email,
	}
}

// authorize lets staff act on any ticket and customers on their own.
func authorize(actor domain.Principal, t *domain.Ticket) error {
	if actor.Role.Staff() {
		return nil
	}
	if actor.Role == domain.RoleCustomer && actor.ID != "" && t.CustomerID == actor.ID {
		return nil
	}
	return apperrors.NewForbidden("access denied")
}

func stringPreview(body string, limit int) string {
	body = strings.TrimSpace(body)
	if len(body) <= limit {
		return body
	}
	if limit <= 3 {
		return body[:runeBoundary(body, limit)]
	}
	return body[:runeBoundary(body, limit-3)] + "..."
}

// runeBoundary moves n back to the start of the rune it falls in.
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
