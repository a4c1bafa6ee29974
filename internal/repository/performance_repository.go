package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MetricsUpdate computes new aggregates from the stored ones.
type MetricsUpdate func(current domain.AgentMetrics) domain.AgentMetrics

// PerformanceRepository owns agent aggregates and the per-ticket audit log.
type PerformanceRepository interface {
	// RecordClosure appends rec and applies update to the agent's aggregates in
	// one unit. It returns false without changes when rec.TicketID was already
	// recorded, and ErrConflict when the aggregates changed underneath.
	RecordClosure(ctx context.Context, rec domain.TicketMetric, update MetricsUpdate) (bool, error)
	// UpdateMetrics applies update to the agent's aggregates with the same
	// conditional write used by RecordClosure.
	UpdateMetrics(ctx context.Context, agentID string, update MetricsUpdate) error
	GetByTicket(ctx context.Context, ticketID string) (*domain.TicketMetric, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]domain.TicketMetric, error)
}

type performanceRepository struct {
	pool *pgxpool.Pool
}

// NewPerformanceRepository builds repository.
func NewPerformanceRepository(pool *pgxpool.Pool) PerformanceRepository {
	return &performanceRepository{pool: pool}
}

func (r *performanceRepository) RecordClosure(ctx context.Context, rec domain.TicketMetric, update MetricsUpdate) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `
        INSERT INTO ticket_metrics (ticket_id, ticket_number, agent_id, response_time, satisfaction_rating, time_spent, closed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (ticket_id) DO NOTHING`
	cmd, err := tx.Exec(ctx, insert,
		rec.TicketID,
		rec.TicketNumber,
		rec.AgentID,
		rec.ResponseTime,
		rec.SatisfactionRating,
		rec.TimeSpent,
		rec.ClosedAt,
	)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	if err := updateMetrics(ctx, tx, rec.AgentID, update); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *performanceRepository) UpdateMetrics(ctx context.Context, agentID string, update MetricsUpdate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updateMetrics(ctx, tx, agentID, update); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func updateMetrics(ctx context.Context, tx pgx.Tx, agentID string, update MetricsUpdate) error {
	const read = `
        SELECT tickets_closed, avg_response_time, response_count, csat_score, total_ratings,
               last_ticket_closed_at, metrics_version
        FROM agents WHERE id=$1`
	var current domain.AgentMetrics
	if err := tx.QueryRow(ctx, read, agentID).Scan(
		&current.TicketsClosed,
		&current.AvgResponseTime,
		&current.ResponseCount,
		&current.CSATScore,
		&current.TotalRatings,
		&current.LastTicketClosedAt,
		&current.Version,
	); err != nil {
		return normalize(err)
	}

	next := update(current)
	const write = `
        UPDATE agents SET tickets_closed=$1, avg_response_time=$2, response_count=$3, csat_score=$4,
            total_ratings=$5, last_ticket_closed_at=$6, metrics_version=metrics_version+1
        WHERE id=$7 AND metrics_version=$8`
	cmd, err := tx.Exec(ctx, write,
		next.TicketsClosed,
		next.AvgResponseTime,
		next.ResponseCount,
		next.CSATScore,
		next.TotalRatings,
		next.LastTicketClosedAt,
		agentID,
		current.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *performanceRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.TicketMetric, error) {
	const query = `
        SELECT ticket_id, ticket_number, agent_id, response_time, satisfaction_rating, time_spent, closed_at
        FROM ticket_metrics WHERE ticket_id=$1`
	var rec domain.TicketMetric
	err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&rec.TicketID,
		&rec.TicketNumber,
		&rec.AgentID,
		&rec.ResponseTime,
		&rec.SatisfactionRating,
		&rec.TimeSpent,
		&rec.ClosedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *performanceRepository) ListByAgent(ctx context.Context, agentID string, limit int) ([]domain.TicketMetric, error) {
	query := `
        SELECT ticket_id, ticket_number, agent_id, response_time, satisfaction_rating, time_spent, closed_at
        FROM ticket_metrics WHERE agent_id=$1 ORDER BY closed_at DESC, ticket_id`
	args := []any{agentID}
	if l, ok := EffectiveLimit(limit); ok {
		args = append(args, l)
		query += ` LIMIT $2`
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMetric
	for rows.Next() {
		var rec domain.TicketMetric
		if err := rows.Scan(
			&rec.TicketID,
			&rec.TicketNumber,
			&rec.AgentID,
			&rec.ResponseTime,
			&rec.SatisfactionRating,
			&rec.TimeSpent,
			&rec.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
