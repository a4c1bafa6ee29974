package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketFilter captures ticket search parameters. Time bounds are half open:
// From is inclusive, To and Before are exclusive.
type TicketFilter struct {
	CustomerID *string
	AgentID    *string
	Unassigned bool
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	SearchTerm *string

	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	UpdatedBefore *time.Time
	ResolvedFrom  *time.Time
	ResolvedTo    *time.Time
	// SLADeadlineAfter is exclusive, SLADeadlineBefore is inclusive.
	SLADeadlineAfter  *time.Time
	SLADeadlineBefore *time.Time

	// OldestFirst orders by created_at ascending instead of updated_at descending.
	OldestFirst bool
	Limit       int
	Offset      int
}

// Matches reports whether t satisfies every criterion of f except paging.
func (f TicketFilter) Matches(t *domain.Ticket) bool {
	if f.CustomerID != nil && t.CustomerID != *f.CustomerID {
		return false
	}
	if f.AgentID != nil && (t.AgentID == nil || *t.AgentID != *f.AgentID) {
		return false
	}
	if f.Unassigned && t.Assigned() {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(t.Subject), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !t.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	if f.UpdatedBefore != nil && !t.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	if f.ResolvedFrom != nil && (t.ResolvedAt == nil || t.ResolvedAt.Before(*f.ResolvedFrom)) {
		return false
	}
	if f.ResolvedTo != nil && (t.ResolvedAt == nil || !t.ResolvedAt.Before(*f.ResolvedTo)) {
		return false
	}
	if f.SLADeadlineAfter != nil && (t.SLADeadline == nil || !t.SLADeadline.After(*f.SLADeadlineAfter)) {
		return false
	}
	if f.SLADeadlineBefore != nil && (t.SLADeadline == nil || t.SLADeadline.After(*f.SLADeadlineBefore)) {
		return false
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create stores a new ticket, assigning ID and Version.
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes ticket if the stored version equals expectedVersion and
	// bumps ticket.Version. It returns ErrConflict on a version mismatch.
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// CountActiveByAgent returns the number of non-closed tickets per agent.
	// Agents without tickets map to 0.
	CountActiveByAgent(ctx context.Context, agentIDs []string) (map[string]int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, version, customer_id, customer_email, customer_name,
               agent_id, agent_name, agent_email, subject, description, status, priority, plan_tier,
               tags, attachments, created_at, updated_at, resolved_at, first_response_at, sla_deadline,
               last_reminder_at, time_spent, satisfaction_rating, feedback, auto_closed`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_number, customer_id, customer_email, customer_name, agent_id, agent_name,
            agent_email, subject, description, status, priority, plan_tier, tags, attachments, created_at,
            updated_at, first_response_at, sla_deadline, time_spent)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
        RETURNING id, version`
	err := r.pool.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.CustomerID,
		ticket.CustomerEmail,
		ticket.CustomerName,
		ticket.AgentID,
		ticket.AgentName,
		ticket.AgentEmail,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.PlanTier,
		nonNil(ticket.Tags),
		nonNil(ticket.Attachments),
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.FirstResponseAt,
		ticket.SLADeadline,
		ticket.TimeSpent,
	).Scan(&ticket.ID, &ticket.Version)
	return normalize(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	const query = `
        UPDATE tickets SET agent_id=$1, agent_name=$2, agent_email=$3, subject=$4, description=$5,
            status=$6, priority=$7, tags=$8, attachments=$9, updated_at=$10, resolved_at=$11,
            first_response_at=$12, sla_deadline=$13, last_reminder_at=$14, time_spent=$15,
            satisfaction_rating=$16, feedback=$17, auto_closed=$18, version=version+1
        WHERE id=$19 AND version=$20
        RETURNING version`
	var version int64
	err := r.pool.QueryRow(ctx, query,
		ticket.AgentID,
		ticket.AgentName,
		ticket.AgentEmail,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		nonNil(ticket.Tags),
		nonNil(ticket.Attachments),
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.FirstResponseAt,
		ticket.SLADeadline,
		ticket.LastReminderAt,
		ticket.TimeSpent,
		ticket.SatisfactionRating,
		ticket.Feedback,
		ticket.AutoClosed,
		ticket.ID,
		expectedVersion,
	).Scan(&version)
	if err == nil {
		ticket.Version = version
		return nil
	}
	if err != pgx.ErrNoRows {
		return err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1`, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, normalize(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}
	add := func(format string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}

	if filter.CustomerID != nil {
		add("customer_id=$%d", *filter.CustomerID)
	}
	if filter.AgentID != nil {
		add("agent_id=$%d", *filter.AgentID)
	}
	if filter.Unassigned {
		clauses = append(clauses, "(agent_id IS NULL OR agent_id='')")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}
	if filter.CreatedFrom != nil {
		add("created_at >= $%d", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("created_at < $%d", *filter.CreatedTo)
	}
	if filter.UpdatedBefore != nil {
		add("updated_at < $%d", *filter.UpdatedBefore)
	}
	if filter.ResolvedFrom != nil {
		add("resolved_at >= $%d", *filter.ResolvedFrom)
	}
	if filter.ResolvedTo != nil {
		add("resolved_at < $%d", *filter.ResolvedTo)
	}
	if filter.SLADeadlineAfter != nil {
		add("sla_deadline > $%d", *filter.SLADeadlineAfter)
	}
	if filter.SLADeadlineBefore != nil {
		add("sla_deadline <= $%d", *filter.SLADeadlineBefore)
	}

	order := "updated_at DESC, id"
	if filter.OldestFirst {
		order = "created_at ASC, id"
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s`, ticketColumns, strings.Join(clauses, " AND "), order)
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
	return scanTickets(rows)
}

func (r *ticketRepository) CountActiveByAgent(ctx context.Context, agentIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(agentIDs))
	for _, id := range agentIDs {
		counts[id] = 0
	}
	if len(agentIDs) == 0 {
		return counts, nil
	}

	const query = `
        SELECT agent_id, COUNT(*) FROM tickets
        WHERE agent_id = ANY($1) AND status <> 'closed'
        GROUP BY agent_id`
	rows, err := r.pool.Query(ctx, query, agentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Version,
		&ticket.CustomerID,
		&ticket.CustomerEmail,
		&ticket.CustomerName,
		&ticket.AgentID,
		&ticket.AgentName,
		&ticket.AgentEmail,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.PlanTier,
		&ticket.Tags,
		&ticket.Attachments,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.FirstResponseAt,
		&ticket.SLADeadline,
		&ticket.LastReminderAt,
		&ticket.TimeSpent,
		&ticket.SatisfactionRating,
		&ticket.Feedback,
		&ticket.AutoClosed,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
