package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// DailyMetricRepository stores rollups keyed by date.
type DailyMetricRepository interface {
	// Upsert merges m into the record for m.Date: counters are replaced,
	// agent buckets are merged key by key and CreatedAt is kept.
	Upsert(ctx context.Context, m *domain.DailyMetric) error
	Get(ctx context.Context, date string) (*domain.DailyMetric, error)
	// ListRange returns records with from <= date <= to, oldest first.
	ListRange(ctx context.Context, from, to string) ([]domain.DailyMetric, error)
}

type dailyMetricRepository struct {
	pool *pgxpool.Pool
}

// NewDailyMetricRepository builds repository.
func NewDailyMetricRepository(pool *pgxpool.Pool) DailyMetricRepository {
	return &dailyMetricRepository{pool: pool}
}

const dailyMetricColumns = `date, tickets_opened, tickets_closed, sla_compliance, agent_metrics, created_at, updated_at`

func (r *dailyMetricRepository) Upsert(ctx context.Context, m *domain.DailyMetric) error {
	const query = `
        INSERT INTO daily_metrics (date, tickets_opened, tickets_closed, sla_compliance, agent_metrics, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$6)
        ON CONFLICT (date) DO UPDATE
        SET tickets_opened=EXCLUDED.tickets_opened, tickets_closed=EXCLUDED.tickets_closed,
            sla_compliance=EXCLUDED.sla_compliance,
            agent_metrics=daily_metrics.agent_metrics || EXCLUDED.agent_metrics,
            updated_at=EXCLUDED.updated_at
        RETURNING ` + dailyMetricColumns
	buckets := m.AgentMetrics
	if buckets == nil {
		buckets = map[string]domain.AgentDayMetric{}
	}
	stored, err := scanDailyMetric(r.pool.QueryRow(ctx, query,
		m.Date,
		m.TicketsOpened,
		m.TicketsClosed,
		m.SLACompliance,
		buckets,
		m.UpdatedAt,
	))
	if err != nil {
		return err
	}
	*m = *stored
	return nil
}

func (r *dailyMetricRepository) Get(ctx context.Context, date string) (*domain.DailyMetric, error) {
	m, err := scanDailyMetric(r.pool.QueryRow(ctx, `SELECT `+dailyMetricColumns+` FROM daily_metrics WHERE date=$1`, date))
	if err != nil {
		return nil, normalize(err)
	}
	return m, nil
}

func (r *dailyMetricRepository) ListRange(ctx context.Context, from, to string) ([]domain.DailyMetric, error) {
	const query = `SELECT ` + dailyMetricColumns + ` FROM daily_metrics WHERE date >= $1 AND date <= $2 ORDER BY date ASC`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DailyMetric
	for rows.Next() {
		m, err := scanDailyMetric(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func scanDailyMetric(row pgx.Row) (*domain.DailyMetric, error) {
	var m domain.DailyMetric
	if err := row.Scan(
		&m.Date,
		&m.TicketsOpened,
		&m.TicketsClosed,
		&m.SLACompliance,
		&m.AgentMetrics,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}
