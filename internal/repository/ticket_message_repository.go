package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MessageRepository manages ticket thread messages. Messages are immutable
// apart from the read marker.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, ticketID, messageID string) (*domain.Message, error)
	ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Message, error)
	// MarkRead sets ReadAt once and returns the stored message.
	MarkRead(ctx context.Context, ticketID, messageID string, at time.Time) (*domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `id, ticket_id, sender_id, sender_name, sender_role, content, is_internal_note, attachments, created_at, read_at`

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, sender_id, sender_name, sender_role, content, is_internal_note, attachments, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderRole,
		msg.Content,
		msg.IsInternalNote,
		nonNil(msg.Attachments),
		msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *messageRepository) GetByID(ctx context.Context, ticketID, messageID string) (*domain.Message, error) {
	const query = `SELECT ` + messageColumns + ` FROM ticket_messages WHERE ticket_id=$1 AND id=$2`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, ticketID, messageID))
	if err != nil {
		return nil, normalize(err)
	}
	return msg, nil
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM ticket_messages WHERE ticket_id=$1`
	if !includeInternal {
		query += ` AND is_internal_note = FALSE`
	}
	query += ` ORDER BY created_at ASC, id`

	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) MarkRead(ctx context.Context, ticketID, messageID string, at time.Time) (*domain.Message, error) {
	const query = `
        UPDATE ticket_messages SET read_at = COALESCE(read_at, $3)
        WHERE ticket_id=$1 AND id=$2
        RETURNING ` + messageColumns
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, ticketID, messageID, at))
	if err != nil {
		return nil, normalize(err)
	}
	return msg, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	if err := row.Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.SenderRole,
		&msg.Content,
		&msg.IsInternalNote,
		&msg.Attachments,
		&msg.CreatedAt,
		&msg.ReadAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}
