package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func seedTicket(t *testing.T, store *TicketStore, number string, mutate func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	tk := &domain.Ticket{
		TicketNumber: number,
		CustomerID:   "c1",
		Subject:      "printer on fire",
		Status:       domain.TicketStatusNew,
		Priority:     domain.TicketPriorityMedium,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	if mutate != nil {
		mutate(tk)
	}
	require.NoError(t, store.Create(context.Background(), tk))
	return tk
}

func TestTicketUpdateOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewStore().Tickets
	tk := seedTicket(t, store, "TKT-1", nil)
	require.NotEmpty(t, tk.ID)
	require.EqualValues(t, 1, tk.Version)

	first, err := store.GetByID(ctx, tk.ID)
	require.NoError(t, err)
	second, err := store.GetByID(ctx, tk.ID)
	require.NoError(t, err)

	first.Status = domain.TicketStatusInProgress
	require.NoError(t, store.Update(ctx, first, first.Version))
	assert.EqualValues(t, 2, first.Version)

	second.Status = domain.TicketStatusWaiting
	err = store.Update(ctx, second, second.Version)
	require.ErrorIs(t, err, repository.ErrConflict)

	stored, err := store.GetByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)

	missing := &domain.Ticket{ID: "nope"}
	require.ErrorIs(t, store.Update(ctx, missing, 1), repository.ErrNotFound)
}

func TestTicketStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore().Tickets
	tk := seedTicket(t, store, "TKT-1", nil)

	got, err := store.GetByID(ctx, tk.ID)
	require.NoError(t, err)
	got.Subject = "changed"

	again, err := store.GetByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "printer on fire", again.Subject)
}

func TestListWithFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStore().Tickets
	seedTicket(t, store, "TKT-1", func(tk *domain.Ticket) { tk.UpdatedAt = base.Add(-10 * 24 * time.Hour) })
	seedTicket(t, store, "TKT-2", func(tk *domain.Ticket) {
		tk.Status = domain.TicketStatusInProgress
		tk.AgentID = strPtr("a1")
		deadline := base.Add(2 * time.Hour)
		tk.SLADeadline = &deadline
	})
	seedTicket(t, store, "TKT-3", func(tk *domain.Ticket) {
		tk.Status = domain.TicketStatusClosed
		resolved := base
		tk.ResolvedAt = &resolved
		tk.AgentID = strPtr("a1")
	})

	cutoff := base.Add(-7 * 24 * time.Hour)
	stale, err := store.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:      domain.ActiveStatuses,
		UpdatedBefore: &cutoff,
		Limit:         repository.ListAll,
	})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "TKT-1", stale[0].TicketNumber)

	windowEnd := base.Add(4 * time.Hour)
	atRisk, err := store.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:          []domain.TicketStatus{domain.TicketStatusNew, domain.TicketStatusInProgress},
		SLADeadlineAfter:  &base,
		SLADeadlineBefore: &windowEnd,
	})
	require.NoError(t, err)
	require.Len(t, atRisk, 1)
	assert.Equal(t, "TKT-2", atRisk[0].TicketNumber)

	unassigned, err := store.ListWithFilter(ctx, repository.TicketFilter{Unassigned: true})
	require.NoError(t, err)
	require.Len(t, unassigned, 1)

	paged, err := store.ListWithFilter(ctx, repository.TicketFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestCountActiveByAgent(t *testing.T) {
	ctx := context.Background()
	store := NewStore().Tickets
	seedTicket(t, store, "TKT-1", func(tk *domain.Ticket) { tk.AgentID = strPtr("a1") })
	seedTicket(t, store, "TKT-2", func(tk *domain.Ticket) { tk.AgentID = strPtr("a1") })
	seedTicket(t, store, "TKT-3", func(tk *domain.Ticket) {
		tk.AgentID = strPtr("a2")
		tk.Status = domain.TicketStatusClosed
		resolved := base
		tk.ResolvedAt = &resolved
	})

	counts, err := store.CountActiveByAgent(ctx, []string{"a1", "a2", "a3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a1": 2, "a2": 0, "a3": 0}, counts)
}

func TestMessagesInternalNotesAndReadMarker(t *testing.T) {
	ctx := context.Background()
	store := NewStore().Messages
	public := &domain.Message{TicketID: "t1", SenderID: "c1", SenderRole: domain.RoleCustomer, Content: "hi", CreatedAt: base}
	note := &domain.Message{TicketID: "t1", SenderID: "a1", SenderRole: domain.RoleAgent, Content: "vip", IsInternalNote: true, CreatedAt: base}
	require.NoError(t, store.Create(ctx, public))
	require.NoError(t, store.Create(ctx, note))

	visible, err := store.ListByTicket(ctx, "t1", false)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	all, err := store.ListByTicket(ctx, "t1", true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	read, err := store.MarkRead(ctx, "t1", public.ID, base.Add(time.Minute))
	require.NoError(t, err)
	again, err := store.MarkRead(ctx, "t1", public.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, *read.ReadAt, *again.ReadAt)

	_, err = store.MarkRead(ctx, "t1", "missing", base)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRecordClosureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Agents.Upsert(ctx, &domain.Agent{ID: "a1", Role: domain.RoleAgent, IsActive: true, UpdatedAt: base}))

	bump := func(m domain.AgentMetrics) domain.AgentMetrics {
		m.TicketsClosed++
		return m
	}
	rec := domain.TicketMetric{TicketID: "t1", AgentID: "a1", ClosedAt: base}

	applied, err := s.Performance.RecordClosure(ctx, rec, bump)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Performance.RecordClosure(ctx, rec, bump)
	require.NoError(t, err)
	assert.False(t, applied)

	agent, err := s.Agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, agent.Metrics.TicketsClosed)

	records, err := s.Performance.ListByAgent(ctx, "a1", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestUpdateMetricsDetectsInterleavedWriter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Agents.Upsert(ctx, &domain.Agent{ID: "a1", Role: domain.RoleAgent, IsActive: true}))

	interfered := false
	s.Performance.BeforeWrite = func() {
		if interfered {
			return
		}
		interfered = true
		require.NoError(t, s.Performance.UpdateMetrics(ctx, "a1", func(m domain.AgentMetrics) domain.AgentMetrics {
			m.TotalRatings++
			return m
		}))
	}

	err := s.Performance.UpdateMetrics(ctx, "a1", func(m domain.AgentMetrics) domain.AgentMetrics {
		m.TicketsClosed++
		return m
	})
	require.ErrorIs(t, err, repository.ErrConflict)

	agent, err := s.Agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, agent.Metrics.TicketsClosed)
	assert.EqualValues(t, 1, agent.Metrics.TotalRatings)
}

func TestAgentUpsertKeepsMetrics(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Agents.Upsert(ctx, &domain.Agent{ID: "a1", Name: "Ann", Role: domain.RoleAgent, IsActive: true}))
	require.NoError(t, s.Performance.UpdateMetrics(ctx, "a1", func(m domain.AgentMetrics) domain.AgentMetrics {
		m.TicketsClosed = 7
		return m
	}))

	update := &domain.Agent{ID: "a1", Name: "Ann B", Role: domain.RoleManager, IsActive: false}
	require.NoError(t, s.Agents.Upsert(ctx, update))
	assert.EqualValues(t, 7, update.Metrics.TicketsClosed)
	assert.Equal(t, "Ann B", update.Name)

	eligible, err := s.Agents.ListEligible(ctx)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestDailyMetricUpsertMerges(t *testing.T) {
	ctx := context.Background()
	store := NewStore().DailyMetrics

	first := &domain.DailyMetric{
		Date:          "2024-05-10",
		TicketsOpened: 3,
		AgentMetrics:  map[string]domain.AgentDayMetric{"a1": {TicketsOpened: 2}, "unassigned": {TicketsOpened: 1}},
		UpdatedAt:     base,
	}
	require.NoError(t, store.Upsert(ctx, first))

	second := &domain.DailyMetric{
		Date:          "2024-05-10",
		TicketsOpened: 3,
		TicketsClosed: 1,
		AgentMetrics:  map[string]domain.AgentDayMetric{"a1": {TicketsOpened: 2, TicketsClosed: 1}},
		UpdatedAt:     base.Add(time.Hour),
	}
	require.NoError(t, store.Upsert(ctx, second))

	got, err := store.Get(ctx, "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, base, got.CreatedAt)
	assert.Equal(t, 1, got.TicketsClosed)
	assert.Equal(t, 1, got.AgentMetrics["a1"].TicketsClosed)
	assert.Equal(t, 1, got.AgentMetrics["unassigned"].TicketsOpened)

	listed, err := store.ListRange(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = store.Get(ctx, "2024-05-11")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
