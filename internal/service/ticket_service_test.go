package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/lifecycle"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func intPtr(v int) *int { return &v }

func TestCreateTicketComputesDeadlineAndAutoAssigns(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "a1", domain.RoleAgent, true)

	tk := f.create(t, domain.PlanProfessional)

	require.NotNil(t, tk.SLADeadline)
	assert.Equal(t, t0.Add(4*time.Hour), *tk.SLADeadline)
	assert.Regexp(t, `^TKT-[0-9A-Z]+-[0-9A-Z]{3}$`, tk.TicketNumber)
	require.True(t, tk.Assigned())
	assert.Equal(t, "a1", *tk.AgentID)
	assert.Equal(t, domain.TicketStatusInProgress, tk.Status)
	require.NoError(t, lifecycle.CheckInvariants(tk))

	confirmations := f.sink.OnChannel(notify.ChannelCustomerEmail)
	require.Len(t, confirmations, 1)
	assert.Equal(t, "cara@example.com", confirmations[0].Recipient)
	assert.Contains(t, confirmations[0].Subject, tk.TicketNumber)

	alerts := f.sink.OnChannel(notify.ChannelAgentAlerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "New ticket assigned", alerts[0].Subject)
}

func TestCreateTicketUnknownTierFallsBackToStandard(t *testing.T) {
	f := newFixture(t)
	tk := f.create(t, "platinum")

	assert.Equal(t, domain.PlanStandard, tk.PlanTier)
	assert.Equal(t, t0.Add(24*time.Hour), *tk.SLADeadline)
}

func TestCreateTicketWithoutAgentsStaysUnassigned(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "gone", domain.RoleAgent, false)

	tk := f.create(t, domain.PlanStandard)

	assert.False(t, tk.Assigned())
	assert.Equal(t, domain.TicketStatusNew, tk.Status)
	assert.Nil(t, tk.FirstResponseAt)
	assert.Empty(t, f.sink.OnChannel(notify.ChannelAgentAlerts))
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tickets.CreateTicket(ctx, customer, TicketCreateInput{Subject: " ", Description: "x"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.tickets.CreateTicket(ctx, customer, TicketCreateInput{Subject: "x", Description: "y", Priority: "critical"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestElevatedPriorityRaisesAlert(t *testing.T) {
	f := newFixture(t)
	_, err := f.tickets.CreateTicket(context.Background(), customer, TicketCreateInput{
		Subject:     "Site down",
		Description: "Everything returns 500",
		Priority:    domain.TicketPriorityUrgent,
	})
	require.NoError(t, err)

	alerts := f.sink.OnChannel(notify.ChannelAgentAlerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "New URGENT priority ticket", alerts[0].Subject)
}

func TestAutoAssignPicksLeastLoadedAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "a1", domain.RoleAgent, true)
	f.addAgent(t, "a2", domain.RoleAgent, true)
	f.addAgent(t, "a3", domain.RoleManager, true)

	for agentID, load := range map[string]int{"a1": 3, "a2": 1, "a3": 2} {
		for i := 0; i < load; i++ {
			id := agentID
			require.NoError(t, f.store.Tickets.Create(ctx, &domain.Ticket{
				TicketNumber: "LOAD-" + agentID + "-" + string(rune('a'+i)),
				CustomerID:   "someone",
				AgentID:      &id,
				Status:       domain.TicketStatusInProgress,
				CreatedAt:    t0,
				UpdatedAt:    t0,
			}))
		}
	}

	tk := f.create(t, domain.PlanStandard)
	require.True(t, tk.Assigned())
	assert.Equal(t, "a2", *tk.AgentID)

	ranked, err := f.assignment.Workload(ctx)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "a2", ranked[0].Agent.ID)
	assert.Equal(t, 2, ranked[0].Load)
}

func TestManualAutoAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)
	require.False(t, tk.Assigned())

	_, err := f.tickets.AutoAssign(ctx, manager, tk.ID)
	assert.ErrorIs(t, err, apperrors.ErrNoEligibleAgent)

	f.addAgent(t, "a1", domain.RoleAgent, true)
	_, err = f.tickets.AutoAssign(ctx, agentPrincipal("a1"), tk.ID)
	assert.Equal(t, "FORBIDDEN", errorCode(err))

	assigned, err := f.tickets.AutoAssign(ctx, manager, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", *assigned.AgentID)

	_, err = f.tickets.AutoAssign(ctx, manager, tk.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestClaimWaitReplyScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanProfessional)
	f.addAgent(t, "a1", domain.RoleAgent, true)
	agent := agentPrincipal("a1")

	f.clock.Set(t0.Add(10 * time.Minute))
	claimed, err := f.tickets.Claim(ctx, agent, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, claimed.Status)
	require.NotNil(t, claimed.FirstResponseAt)
	assert.Equal(t, t0.Add(10*time.Minute), *claimed.FirstResponseAt)

	f.clock.Set(t0.Add(2 * time.Hour))
	waiting, err := f.tickets.ChangeStatus(ctx, agent, tk.ID, domain.TicketStatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, waiting.Status)

	f.clock.Set(t0.Add(3 * time.Hour))
	_, err = f.tickets.AddMessage(ctx, customer, tk.ID, MessageInput{Content: "Here are the logs"})
	require.NoError(t, err)

	current := f.get(t, tk.ID)
	assert.Equal(t, domain.TicketStatusInProgress, current.Status)
	assert.Equal(t, t0.Add(10*time.Minute), *current.FirstResponseAt)
	assert.Equal(t, t0.Add(3*time.Hour), current.UpdatedAt)

	view, err := f.tickets.GetTicket(ctx, agent, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, sla.StatusOK, view.SLAStatus)
	assert.Len(t, view.History, 4)
}

func TestClaimTakenTicketRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "a1", domain.RoleAgent, true)
	tk := f.create(t, domain.PlanStandard)
	f.addAgent(t, "a2", domain.RoleAgent, true)

	_, err := f.tickets.Claim(ctx, agentPrincipal("a2"), tk.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = f.tickets.Claim(ctx, customer, tk.ID)
	assert.Equal(t, "FORBIDDEN", errorCode(err))
}

func TestManagerAssignValidatesAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)
	f.addAgent(t, "a1", domain.RoleAgent, true)
	f.addAgent(t, "off", domain.RoleAgent, false)

	_, err := f.tickets.Assign(ctx, manager, tk.ID, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.tickets.Assign(ctx, manager, tk.ID, "off")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	assigned, err := f.tickets.Assign(ctx, manager, tk.ID, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", *assigned.AgentID)
	assert.Equal(t, "a1@helpdesk.example", *assigned.AgentEmail)

	emails := f.sink.OnChannel(notify.ChannelAgentEmail)
	require.Len(t, emails, 1)
	assert.Equal(t, "a1@helpdesk.example", emails[0].Recipient)
}

func TestAgentReplyMarksFirstResponseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)
	f.addAgent(t, "a1", domain.RoleAgent, true)
	agent := agentPrincipal("a1")

	f.clock.Set(t0.Add(30 * time.Minute))
	_, err := f.tickets.AddMessage(ctx, agent, tk.ID, MessageInput{Content: "Looking into it"})
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Hour))
	_, err = f.tickets.AddMessage(ctx, agent, tk.ID, MessageInput{Content: "Still looking"})
	require.NoError(t, err)

	current := f.get(t, tk.ID)
	assert.Equal(t, domain.TicketStatusInProgress, current.Status)
	assert.Equal(t, t0.Add(30*time.Minute), *current.FirstResponseAt)

	replies := f.sink.OnChannel(notify.ChannelCustomerEmail)
	assert.Len(t, replies, 3)
}

func TestInternalNotesHiddenFromCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)
	agent := agentPrincipal("a1")

	_, err := f.tickets.AddMessage(ctx, customer, tk.ID, MessageInput{Content: "secret", IsInternalNote: true})
	assert.Equal(t, "FORBIDDEN", errorCode(err))

	note, err := f.tickets.AddMessage(ctx, agent, tk.ID, MessageInput{Content: "customer is on legacy plan", IsInternalNote: true})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, f.get(t, tk.ID).Status)

	customerView, err := f.tickets.GetTicket(ctx, customer, tk.ID)
	require.NoError(t, err)
	assert.Empty(t, customerView.Messages)

	agentView, err := f.tickets.GetTicket(ctx, agent, tk.ID)
	require.NoError(t, err)
	require.Len(t, agentView.Messages, 1)
	assert.True(t, agentView.Messages[0].IsInternalNote)

	_, err = f.tickets.MarkMessageRead(ctx, customer, tk.ID, note.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMarkMessageReadIsSetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)
	msg, err := f.tickets.AddMessage(ctx, customer, tk.ID, MessageInput{Content: "hello"})
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Hour))
	read, err := f.tickets.MarkMessageRead(ctx, agentPrincipal("a1"), tk.ID, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)

	f.clock.Set(t0.Add(2 * time.Hour))
	again, err := f.tickets.MarkMessageRead(ctx, agentPrincipal("a1"), tk.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), *again.ReadAt)
}

func TestCustomerCannotSeeOthersTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)

	_, err := f.tickets.GetTicket(ctx, stranger, tk.ID)
	assert.Equal(t, "FORBIDDEN", errorCode(err))

	_, err = f.tickets.AddMessage(ctx, stranger, tk.ID, MessageInput{Content: "hi"})
	assert.Equal(t, "FORBIDDEN", errorCode(err))

	mine, err := f.tickets.ListTickets(ctx, customer, TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.tickets.ListTickets(ctx, stranger, TicketListFilter{})
	require.NoError(t, err)
	assert.Empty(t, theirs)

	all, err := f.tickets.ListTickets(ctx, manager, TicketListFilter{Statuses: []domain.TicketStatus{domain.TicketStatusNew}})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCloseWithRatingUpdatesAgentMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)
	f.addAgent(t, "a1", domain.RoleAgent, true)

	f.clock.Set(t0.Add(10 * time.Minute))
	_, err := f.tickets.Claim(ctx, agentPrincipal("a1"), tk.ID)
	require.NoError(t, err)

	f.clock.Set(t0.Add(5 * time.Hour))
	before := f.get(t, tk.ID)
	closed, err := f.tickets.Close(ctx, customer, tk.ID, CloseInput{Rating: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	assert.Equal(t, t0.Add(5*time.Hour), *closed.ResolvedAt)
	require.NoError(t, lifecycle.CheckInvariants(closed))

	agent, err := f.store.Agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, agent.Metrics.TicketsClosed)
	assert.InDelta(t, 10, agent.Metrics.AvgResponseTime, 1e-9)
	assert.InDelta(t, 5, agent.Metrics.CSATScore, 1e-9)
	assert.EqualValues(t, 1, agent.Metrics.TotalRatings)

	// Redelivery of the same closure must not count twice.
	require.NoError(t, f.tickets.HandleTicketUpdated(ctx, before, closed))
	agent, err = f.store.Agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, agent.Metrics.TicketsClosed)

	record, err := f.store.Performance.GetByTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, *record.SatisfactionRating)

	_, err = f.tickets.Close(ctx, customer, tk.ID, CloseInput{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestOnlyCustomerMayRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)

	_, err := f.tickets.Close(ctx, agentPrincipal("a1"), tk.ID, CloseInput{Rating: intPtr(4)})
	assert.Equal(t, "FORBIDDEN", errorCode(err))

	_, err = f.tickets.Close(ctx, customer, tk.ID, CloseInput{Rating: intPtr(9)})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, domain.TicketStatusNew, f.get(t, tk.ID).Status)
}

func TestLateRatingFoldsIntoCSAT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "a1", domain.RoleAgent, true)
	tk := f.create(t, domain.PlanStandard)

	f.clock.Set(t0.Add(time.Hour))
	_, err := f.tickets.Close(ctx, agentPrincipal("a1"), tk.ID, CloseInput{})
	require.NoError(t, err)

	f.clock.Set(t0.Add(2 * time.Hour))
	rated, err := f.tickets.RateTicket(ctx, customer, tk.ID, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, *rated.SatisfactionRating)

	agent, err := f.store.Agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, agent.Metrics.TicketsClosed)
	assert.EqualValues(t, 1, agent.Metrics.TotalRatings)
	assert.InDelta(t, 4, agent.Metrics.CSATScore, 1e-9)

	_, err = f.tickets.RateTicket(ctx, customer, tk.ID, 5, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestLateRatingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)
	_, err := f.tickets.Close(ctx, customer, tk.ID, CloseInput{})
	require.NoError(t, err)

	f.clock.Set(t0.Add(8 * 24 * time.Hour))
	_, err = f.tickets.RateTicket(ctx, customer, tk.ID, 3, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestNotificationFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.sink.Fail = map[notify.Channel]bool{notify.ChannelCustomerEmail: true, notify.ChannelAgentAlerts: true}
	f.addAgent(t, "a1", domain.RoleAgent, true)

	tk := f.create(t, domain.PlanStandard)
	assert.True(t, tk.Assigned())
	assert.Empty(t, f.sink.Sent())
}

func TestCloseStaleRechecksAtWriteTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)

	f.clock.Set(t0.Add(8 * 24 * time.Hour))
	cutoff := f.clock.Now().Add(-7 * 24 * time.Hour)

	closed, ok, err := f.tickets.CloseStale(ctx, tk.ID, cutoff)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, closed.AutoClosed)

	_, ok, err = f.tickets.CloseStale(ctx, tk.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)

	fresh := f.create(t, domain.PlanStandard)
	_, ok, err = f.tickets.CloseStale(ctx, fresh.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordReminderKeepsUpdatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, domain.PlanStandard)

	at := t0.Add(30 * time.Hour)
	require.NoError(t, f.tickets.RecordReminder(ctx, tk.ID, at))

	current := f.get(t, tk.ID)
	assert.Equal(t, at, *current.LastReminderAt)
	assert.Equal(t, t0, current.UpdatedAt)
}

// racingTickets lets a competing writer land between the service's read and
// its first write.
type racingTickets struct {
	repository.TicketRepository
	once    sync.Once
	compete func()
}

func (r *racingTickets) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	if r.compete != nil {
		r.once.Do(r.compete)
	}
	return r.TicketRepository.Update(ctx, ticket, expectedVersion)
}

func TestMutationRetriesAfterVersionConflict(t *testing.T) {
	var racer *racingTickets
	f := newFixture(t, withTicketRepo(func(inner repository.TicketRepository) repository.TicketRepository {
		racer = &racingTickets{TicketRepository: inner}
		return racer
	}))
	ctx := context.Background()
	f.addAgent(t, "a1", domain.RoleAgent, true)
	tk := f.create(t, domain.PlanStandard)

	racer.compete = func() {
		current, err := f.store.Tickets.GetByID(ctx, tk.ID)
		require.NoError(t, err)
		current.TimeSpent = 600
		require.NoError(t, f.store.Tickets.Update(ctx, current, current.Version))
	}

	updated, err := f.tickets.ChangeStatus(ctx, agentPrincipal("a1"), tk.ID, domain.TicketStatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, updated.Status)
	assert.EqualValues(t, 600, updated.TimeSpent)
}

type flakyPerformance struct {
	repository.PerformanceRepository
	mu       sync.Mutex
	failures int
}

func (p *flakyPerformance) RecordClosure(ctx context.Context, rec domain.TicketMetric, update repository.MetricsUpdate) (bool, error) {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return false, errors.New("connection reset")
	}
	p.mu.Unlock()
	return p.PerformanceRepository.RecordClosure(ctx, rec, update)
}

func TestClosureMetricsFailureIsReturnedAndReconciled(t *testing.T) {
	perf := &flakyPerformance{failures: 2}
	f := newFixture(t, withRecorderRepo(func(inner repository.PerformanceRepository) repository.PerformanceRepository {
		perf.PerformanceRepository = inner
		return perf
	}))
	ctx := context.Background()
	f.addAgent(t, "a1", domain.RoleAgent, true)
	stale := f.create(t, domain.PlanStandard)
	manual := f.create(t, domain.PlanStandard)
	require.True(t, stale.Assigned())

	f.clock.Set(t0.Add(8 * 24 * time.Hour))
	cutoff := f.clock.Now().Add(-7 * 24 * time.Hour)

	closed, ok, err := f.tickets.CloseStale(ctx, stale.ID, cutoff)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDependencyUnavailable)
	assert.True(t, ok, "the closure itself is stored")
	require.NotNil(t, closed)
	assert.Equal(t, domain.TicketStatusClosed, f.get(t, stale.ID).Status)

	_, err = f.tickets.Close(ctx, manager, manual.ID, CloseInput{})
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(err))
	assert.Equal(t, domain.TicketStatusClosed, f.get(t, manual.ID).Status)

	agent, err := f.store.Agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Zero(t, agent.Metrics.TicketsClosed)

	_, ok, err = f.tickets.CloseStale(ctx, stale.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, id := range []string{stale.ID, manual.ID} {
		applied, err := f.tickets.ReconcileClosure(ctx, id)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = f.tickets.ReconcileClosure(ctx, id)
		require.NoError(t, err)
		assert.False(t, applied)
	}

	agent, err = f.store.Agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, agent.Metrics.TicketsClosed)
}

func TestReconcileClosureIgnoresOpenTickets(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "a1", domain.RoleAgent, true)
	tk := f.create(t, domain.PlanStandard)

	applied, err := f.tickets.ReconcileClosure(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestMessagesAttachToClosedTicketWithoutTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "a1", domain.RoleAgent, true)
	tk := f.create(t, domain.PlanStandard)

	closed, err := f.tickets.Close(ctx, customer, tk.ID, CloseInput{})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	msg, err := f.tickets.AddMessage(ctx, customer, tk.ID, MessageInput{Content: "Thanks, all good now"})
	require.NoError(t, err)
	assert.Equal(t, tk.ID, msg.TicketID)

	_, err = f.tickets.AddMessage(ctx, agentPrincipal("a1"), tk.ID, MessageInput{Content: "closed after confirmation", IsInternalNote: true})
	require.NoError(t, err)

	after := f.get(t, tk.ID)
	assert.Equal(t, domain.TicketStatusClosed, after.Status)
	assert.Equal(t, closed.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, closed.Version, after.Version)

	_, err = f.tickets.AddMessage(ctx, stranger, tk.ID, MessageInput{Content: "hello?"})
	assert.Equal(t, "FORBIDDEN", errorCode(err))
}

func TestStringPreviewKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("a", 116) + "ééé"
	preview := stringPreview(body, 120)
	assert.True(t, utf8.ValidString(preview))
	assert.Equal(t, strings.Repeat("a", 116)+"...", preview)

	short := stringPreview("héllo", 2)
	assert.True(t, utf8.ValidString(short))
	assert.Equal(t, "h", short)

	assert.Equal(t, "plain", stringPreview("  plain  ", 120))
}
