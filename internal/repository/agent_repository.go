package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// AgentRepository is the staff directory. Upsert writes profile fields only;
// performance counters are written through PerformanceRepository.
type AgentRepository interface {
	Upsert(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error)
	// ListEligible returns active agents and managers.
	ListEligible(ctx context.Context) ([]domain.Agent, error)
}

// AgentFilter defines query params for agent listing.
type AgentFilter struct {
	Role   *domain.Role
	Active *bool
	Limit  int
	Offset int
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

const agentColumns = `id, name, email, role, skills, active_flag, tickets_closed, avg_response_time,
               response_count, csat_score, total_ratings, last_ticket_closed_at, metrics_version,
               created_at, updated_at`

func (r *agentRepository) Upsert(ctx context.Context, agent *domain.Agent) error {
	query := `
        INSERT INTO agents (id, name, email, role, skills, active_flag, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
        ON CONFLICT (id) DO UPDATE
        SET name=EXCLUDED.name, email=EXCLUDED.email, role=EXCLUDED.role, skills=EXCLUDED.skills,
            active_flag=EXCLUDED.active_flag, updated_at=EXCLUDED.updated_at
        RETURNING ` + agentColumns
	stored, err := scanAgent(r.pool.QueryRow(ctx, query,
		agent.ID,
		agent.Name,
		agent.Email,
		agent.Role,
		nonNil(agent.Skills),
		agent.IsActive,
		agent.UpdatedAt,
	))
	if err != nil {
		return err
	}
	*agent = *stored
	return nil
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	agent, err := scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=$1`, id))
	if err != nil {
		return nil, normalize(err)
	}
	return agent, nil
}

func (r *agentRepository) ListEligible(ctx context.Context) ([]domain.Agent, error) {
	active := true
	return r.list(ctx, AgentFilter{Active: &active, Limit: ListAll}, []domain.Role{domain.RoleAgent, domain.RoleManager})
}

func (r *agentRepository) List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error) {
	return r.list(ctx, filter, nil)
}

func (r *agentRepository) list(ctx context.Context, filter AgentFilter, roles []domain.Role) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if len(roles) > 0 {
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		args = append(args, names)
		clauses = append(clauses, fmt.Sprintf("role = ANY($%d)", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY created_at ASC, id"
	if limit, ok := EffectiveLimit(filter.Limit); ok {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *agent)
	}
	return result, rows.Err()
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var agent domain.Agent
	if err := row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.Role,
		&agent.Skills,
		&agent.IsActive,
		&agent.Metrics.TicketsClosed,
		&agent.Metrics.AvgResponseTime,
		&agent.Metrics.ResponseCount,
		&agent.Metrics.CSATScore,
		&agent.Metrics.TotalRatings,
		&agent.Metrics.LastTicketClosedAt,
		&agent.Metrics.Version,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}
