package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/assignment"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AssignmentService picks agents for tickets and owns the agent directory.
type AssignmentService struct {
	tickets     repository.TicketRepository
	agents      repository.AgentRepository
	performance repository.PerformanceRepository
	clock       clock.Clock
	logger      *zap.Logger
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo      repository.TicketRepository
	AgentRepo       repository.AgentRepository
	PerformanceRepo repository.PerformanceRepository
	Clock           clock.Clock
	Logger          *zap.Logger
}

// AgentProfileInput is the directory profile written by RegisterAgent.
type AgentProfileInput struct {
	ID       string
	Name     string
	Email    string
	Role     domain.Role
	Skills   []string
	IsActive bool
}

// AgentListFilter narrows ListAgents.
type AgentListFilter struct {
	Role   *domain.Role
	Active *bool
	Limit  int
	Offset int
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &AssignmentService{
		tickets:     deps.TicketRepo,
		agents:      deps.AgentRepo,
		performance: deps.PerformanceRepo,
		clock:       clk,
		logger:      logger,
	}
}

// SelectLeastLoaded returns the eligible agent with the fewest active tickets.
// Loads are read without locking, so two concurrent calls may pick the same agent.
func (s *AssignmentService) SelectLeastLoaded(ctx context.Context) (*domain.Agent, error) {
	candidates, load, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}
	agent, ok := assignment.SelectAgent(candidates, load)
	if !ok {
		return nil, apperrors.NewNoEligibleAgent(nil)
	}
	s.logger.Debug("agent selected",
		zap.String("agent_id", agent.ID),
		zap.Int("active_load", load[agent.ID]),
		zap.Int("candidates", len(candidates)))
	return &agent, nil
}

// Workload ranks eligible agents by active load.
func (s *AssignmentService) Workload(ctx context.Context) ([]assignment.Candidate, error) {
	candidates, load, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}
	return assignment.Rank(candidates, load), nil
}

func (s *AssignmentService) candidates(ctx context.Context) ([]domain.Agent, map[string]int, error) {
	agents, err := s.agents.ListEligible(ctx)
	if err != nil {
		return nil, nil, apperrors.NewDependencyUnavailable("agent directory", err)
	}
	if len(agents) == 0 {
		return nil, nil, apperrors.NewNoEligibleAgent(nil)
	}
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	load, err := s.tickets.CountActiveByAgent(ctx, ids)
	if err != nil {
		return nil, nil, apperrors.NewDependencyUnavailable("ticket store", err)
	}
	return agents, load, nil
}

// ResolveAssignee loads agentID and checks that it can take tickets.
func (s *AssignmentService) ResolveAssignee(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, storeError("agent", agentID, err)
	}
	if !agent.Eligible() {
		return nil, apperrors.NewValidationError("agent cannot receive tickets", map[string]any{
			"agent_id":  agentID,
			"is_active": agent.IsActive,
			"role":      agent.Role,
		})
	}
	return agent, nil
}

// RegisterAgent creates or updates a directory profile. Performance counters
// are never touched here.
func (s *AssignmentService) RegisterAgent(ctx context.Context, input AgentProfileInput) (*domain.Agent, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Name = strings.TrimSpace(input.Name)
	if input.ID == "" || input.Name == "" {
		return nil, apperrors.NewValidationError("agent id and name are required", nil)
	}
	if !input.Role.Staff() {
		return nil, apperrors.NewValidationError("agent role must be agent or manager", map[string]any{"role": input.Role})
	}
	agent := &domain.Agent{
		ID:        input.ID,
		Name:      input.Name,
		Email:     strings.TrimSpace(input.Email),
		Role:      input.Role,
		Skills:    input.Skills,
		IsActive:  input.IsActive,
		UpdatedAt: s.clock.Now(),
	}
	if err := s.agents.Upsert(ctx, agent); err != nil {
		return nil, storeError("agent", input.ID, err)
	}
	s.logger.Info("agent profile saved", zap.String("agent_id", agent.ID), zap.Bool("active", agent.IsActive))
	return agent, nil
}

// GetAgent returns one directory entry with its counters.
func (s *AssignmentService) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, storeError("agent", agentID, err)
	}
	return agent, nil
}

// ListAgents lists directory entries with their counters.
func (s *AssignmentService) ListAgents(ctx context.Context, filter AgentListFilter) ([]domain.Agent, error) {
	agents, err := s.agents.List(ctx, repository.AgentFilter{
		Role:   filter.Role,
		Active: filter.Active,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
	if err != nil {
		return nil, storeError("agent", "", err)
	}
	return agents, nil
}

// AgentPerformance returns an agent with its per-ticket metric records,
// newest first.
func (s *AssignmentService) AgentPerformance(ctx context.Context, agentID string, limit int) (*domain.Agent, []domain.TicketMetric, error) {
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.performance.ListByAgent(ctx, agentID, limit)
	if err != nil {
		return nil, nil, storeError("ticket metric", agentID, err)
	}
	return agent, records, nil
}

// storeError maps repository errors onto DomainErrors. Anything that is not
// a store sentinel or already a DomainError means the store itself failed.
func storeError(resource, id string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, idDetails(resource, id))
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict(resource+" was modified concurrently", idDetails(resource, id))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return apperrors.NewDependencyUnavailable(resource+" store", err)
}

func idDetails(resource, id string) map[string]any {
	if id == "" {
		return nil
	}
	key := strings.ReplaceAll(resource, " ", "_") + "_id"
	return map[string]any{key: id}
}
