// Package memory provides map backed stores with the same semantics as the
// Postgres repositories. It backs tests and runs the service when no DSN is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Store bundles every in-memory repository.
type Store struct {
	Tickets      *TicketStore
	Messages     *MessageStore
	History      *HistoryStore
	Agents       *AgentStore
	Performance  *PerformanceStore
	DailyMetrics *DailyMetricStore
}

// NewStore builds an empty store.
func NewStore() *Store {
	agents := &AgentStore{agents: map[string]*domain.Agent{}}
	return &Store{
		Tickets:      &TicketStore{tickets: map[string]*domain.Ticket{}},
		Messages:     &MessageStore{messages: map[string][]*domain.Message{}},
		History:      &HistoryStore{entries: map[string][]domain.TicketHistory{}},
		Agents:       agents,
		Performance:  &PerformanceStore{agents: agents, records: map[string]domain.TicketMetric{}},
		DailyMetrics: &DailyMetricStore{metrics: map[string]*domain.DailyMetric{}},
	}
}

var (
	_ repository.TicketRepository        = (*TicketStore)(nil)
	_ repository.MessageRepository       = (*MessageStore)(nil)
	_ repository.TicketHistoryRepository = (*HistoryStore)(nil)
	_ repository.AgentRepository         = (*AgentStore)(nil)
	_ repository.PerformanceRepository   = (*PerformanceStore)(nil)
	_ repository.DailyMetricRepository   = (*DailyMetricStore)(nil)
)

// TicketStore keeps tickets by ID.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
}

func (s *TicketStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tickets {
		if existing.TicketNumber == ticket.TicketNumber {
			return repository.ErrConflict
		}
	}
	ticket.ID = uuid.New().String()
	ticket.Version = 1
	s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (s *TicketStore) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrConflict
	}
	ticket.Version = expectedVersion + 1
	stored := ticket.Clone()
	stored.TicketNumber = current.TicketNumber
	stored.CreatedAt = current.CreatedAt
	stored.CustomerID = current.CustomerID
	s.tickets[ticket.ID] = stored
	return nil
}

func (s *TicketStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *TicketStore) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tickets {
		if t.TicketNumber == number {
			return t.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *TicketStore) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]domain.Ticket, 0)
	for _, t := range s.tickets {
		if filter.Matches(t) {
			matched = append(matched, *t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.OldestFirst {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return page(matched, filter.Limit, filter.Offset), nil
}

func (s *TicketStore) CountActiveByAgent(ctx context.Context, agentIDs []string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(agentIDs))
	for _, id := range agentIDs {
		counts[id] = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tickets {
		if t.Status.Terminal() || !t.Assigned() {
			continue
		}
		if _, tracked := counts[*t.AgentID]; tracked {
			counts[*t.AgentID]++
		}
	}
	return counts, nil
}

// MessageStore keeps messages per ticket in insertion order.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string][]*domain.Message
}

func (s *MessageStore) Create(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.New().String()
	stored := *msg
	stored.Attachments = append([]string(nil), msg.Attachments...)
	s.messages[msg.TicketID] = append(s.messages[msg.TicketID], &stored)
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, ticketID, messageID string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages[ticketID] {
		if m.ID == messageID {
			out := *m
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *MessageStore) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Message, 0, len(s.messages[ticketID]))
	for _, m := range s.messages[ticketID] {
		if m.IsInternalNote && !includeInternal {
			continue
		}
		result = append(result, *m)
	}
	return result, nil
}

func (s *MessageStore) MarkRead(ctx context.Context, ticketID, messageID string, at time.Time) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[ticketID] {
		if m.ID != messageID {
			continue
		}
		if m.ReadAt == nil {
			readAt := at
			m.ReadAt = &readAt
		}
		out := *m
		return &out, nil
	}
	return nil, repository.ErrNotFound
}

// HistoryStore keeps audit entries per ticket.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]domain.TicketHistory
}

func (s *HistoryStore) Create(ctx context.Context, history *domain.TicketHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history.ID = uuid.New().String()
	s.entries[history.TicketID] = append(s.entries[history.TicketID], *history)
	return nil
}

func (s *HistoryStore) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TicketHistory(nil), s.entries[ticketID]...), nil
}

// AgentStore is the staff directory.
type AgentStore struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
	order  []string
}

func (s *AgentStore) Upsert(ctx context.Context, agent *domain.Agent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.agents[agent.ID]
	if !ok {
		stored := *agent
		stored.Skills = append([]string(nil), agent.Skills...)
		stored.Metrics = domain.AgentMetrics{}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = agent.UpdatedAt
		}
		s.agents[agent.ID] = &stored
		s.order = append(s.order, agent.ID)
		*agent = stored
		return nil
	}
	existing.Name = agent.Name
	existing.Email = agent.Email
	existing.Role = agent.Role
	existing.Skills = append([]string(nil), agent.Skills...)
	existing.IsActive = agent.IsActive
	existing.UpdatedAt = agent.UpdatedAt
	*agent = *existing
	return nil
}

func (s *AgentStore) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *AgentStore) List(ctx context.Context, filter repository.AgentFilter) ([]domain.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	result := make([]domain.Agent, 0, len(s.order))
	for _, id := range s.order {
		a := s.agents[id]
		if filter.Role != nil && a.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && a.IsActive != *filter.Active {
			continue
		}
		result = append(result, *a)
	}
	s.mu.RUnlock()
	return page(result, filter.Limit, filter.Offset), nil
}

func (s *AgentStore) ListEligible(ctx context.Context) ([]domain.Agent, error) {
	all, err := s.List(ctx, repository.AgentFilter{Limit: repository.ListAll})
	if err != nil {
		return nil, err
	}
	result := make([]domain.Agent, 0, len(all))
	for _, a := range all {
		if a.Eligible() {
			result = append(result, a)
		}
	}
	return result, nil
}

// PerformanceStore writes agent aggregates held by AgentStore.
type PerformanceStore struct {
	agents  *AgentStore
	mu      sync.Mutex
	records map[string]domain.TicketMetric
	order   []string

	// BeforeWrite runs between reading and writing aggregates. Tests use it
	// to interleave a competing writer.
	BeforeWrite func()
}

func (s *PerformanceStore) RecordClosure(ctx context.Context, rec domain.TicketMetric, update repository.MetricsUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.records[rec.TicketID]; seen {
		return false, nil
	}
	if err := s.UpdateMetrics(ctx, rec.AgentID, update); err != nil {
		return false, err
	}
	s.records[rec.TicketID] = rec
	s.order = append(s.order, rec.TicketID)
	return true, nil
}

func (s *PerformanceStore) UpdateMetrics(ctx context.Context, agentID string, update repository.MetricsUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.agents.mu.RLock()
	agent, ok := s.agents.agents[agentID]
	var current domain.AgentMetrics
	if ok {
		current = agent.Metrics
	}
	s.agents.mu.RUnlock()
	if !ok {
		return repository.ErrNotFound
	}

	next := update(current)
	if s.BeforeWrite != nil {
		s.BeforeWrite()
	}

	s.agents.mu.Lock()
	defer s.agents.mu.Unlock()
	if agent.Metrics.Version != current.Version {
		return repository.ErrConflict
	}
	next.Version = current.Version + 1
	agent.Metrics = next
	return nil
}

func (s *PerformanceStore) GetByTicket(ctx context.Context, ticketID string) (*domain.TicketMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (s *PerformanceStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]domain.TicketMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	result := make([]domain.TicketMetric, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.records[s.order[i]]
		if rec.AgentID == agentID {
			result = append(result, rec)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(result, func(i, j int) bool { return result[i].ClosedAt.After(result[j].ClosedAt) })
	return page(result, limit, 0), nil
}

// DailyMetricStore keeps rollups by date key.
type DailyMetricStore struct {
	mu      sync.RWMutex
	metrics map[string]*domain.DailyMetric
}

func (s *DailyMetricStore) Upsert(ctx context.Context, m *domain.DailyMetric) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.metrics[m.Date]
	if !ok {
		stored := copyDailyMetric(m)
		stored.CreatedAt = m.UpdatedAt
		s.metrics[m.Date] = stored
		*m = *copyDailyMetric(stored)
		return nil
	}
	existing.TicketsOpened = m.TicketsOpened
	existing.TicketsClosed = m.TicketsClosed
	existing.SLACompliance = m.SLACompliance
	existing.UpdatedAt = m.UpdatedAt
	if existing.AgentMetrics == nil {
		existing.AgentMetrics = map[string]domain.AgentDayMetric{}
	}
	for k, v := range m.AgentMetrics {
		existing.AgentMetrics[k] = v
	}
	*m = *copyDailyMetric(existing)
	return nil
}

func (s *DailyMetricStore) Get(ctx context.Context, date string) (*domain.DailyMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[date]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyDailyMetric(m), nil
}

func (s *DailyMetricStore) ListRange(ctx context.Context, from, to string) ([]domain.DailyMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	result := make([]domain.DailyMetric, 0)
	for date, m := range s.metrics {
		if date >= from && date <= to {
			result = append(result, *copyDailyMetric(m))
		}
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

func copyDailyMetric(m *domain.DailyMetric) *domain.DailyMetric {
	out := *m
	out.AgentMetrics = make(map[string]domain.AgentDayMetric, len(m.AgentMetrics))
	for k, v := range m.AgentMetrics {
		out.AgentMetrics[k] = v
	}
	return &out
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if l, ok := repository.EffectiveLimit(limit); ok && l < len(items) {
		items = items[:l]
	}
	return items
}
