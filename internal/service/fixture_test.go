package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/agentmetrics"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

var (
	customer = domain.Principal{ID: "c1", Name: "Cara", Email: "cara@example.com", Role: domain.RoleCustomer}
	stranger = domain.Principal{ID: "c2", Name: "Sam", Email: "sam@example.com", Role: domain.RoleCustomer}
	manager  = domain.Principal{ID: "m1", Name: "Mia", Email: "mia@example.com", Role: domain.RoleManager}
)

func agentPrincipal(id string) domain.Principal {
	return domain.Principal{ID: id, Name: "Agent " + id, Role: domain.RoleAgent}
}

type fixture struct {
	store      *memory.Store
	clock      *clock.Manual
	sink       *notify.MemorySink
	dispatcher events.Dispatcher
	assignment *AssignmentService
	tickets    *TicketService
}

type fixtureOption func(store *memory.Store, d *TicketDependencies)

func withTicketRepo(wrap func(repository.TicketRepository) repository.TicketRepository) fixtureOption {
	return func(_ *memory.Store, d *TicketDependencies) {
		d.TicketRepo = wrap(d.TicketRepo)
	}
}

func withRecorderRepo(wrap func(repository.PerformanceRepository) repository.PerformanceRepository) fixtureOption {
	return func(store *memory.Store, d *TicketDependencies) {
		d.Recorder = agentmetrics.NewRecorder(wrap(store.Performance), zap.NewNop(), 3)
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManual(t0)
	sink := &notify.MemorySink{}
	dispatcher := events.NewInMemoryDispatcher()
	logger := zap.NewNop()

	NewNotificationService(dispatcher, sink, nil, logger).RegisterHandlers()

	assignmentSvc := NewAssignmentService(AssignmentDependencies{
		TicketRepo:      store.Tickets,
		AgentRepo:       store.Agents,
		PerformanceRepo: store.Performance,
		Clock:           clk,
		Logger:          logger,
	})
	deps := TicketDependencies{
		TicketRepo:   store.Tickets,
		MessageRepo:  store.Messages,
		HistoryRepo:  store.History,
		Assignment:   assignmentSvc,
		Recorder:     agentmetrics.NewRecorder(store.Performance, logger, 3),
		SLA:          sla.DefaultPolicy(),
		Dispatcher:   dispatcher,
		Clock:        clk,
		Logger:       logger,
		RatingWindow: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(store, &deps)
	}
	return &fixture{
		store:      store,
		clock:      clk,
		sink:       sink,
		dispatcher: dispatcher,
		assignment: assignmentSvc,
		tickets:    NewTicketService(deps),
	}
}

func (f *fixture) addAgent(t *testing.T, id string, role domain.Role, active bool) {
	t.Helper()
	_, err := f.assignment.RegisterAgent(context.Background(), AgentProfileInput{
		ID:       id,
		Name:     "Agent " + id,
		Email:    id + "@helpdesk.example",
		Role:     role,
		IsActive: active,
	})
	require.NoError(t, err)
}

func (f *fixture) create(t *testing.T, tier domain.PlanTier) *domain.Ticket {
	t.Helper()
	tk, err := f.tickets.CreateTicket(context.Background(), customer, TicketCreateInput{
		Subject:     "Cannot log in",
		Description: "The login page spins forever",
		PlanTier:    tier,
	})
	require.NoError(t, err)
	return tk
}

func (f *fixture) get(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	tk, err := f.store.Tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return tk
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return apperrors.ToDomainError(err).Code
}
