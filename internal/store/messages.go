package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"twoway-sms/internal/models"
)

const messageColumns = `id, conversation_id, content, direction, status, provider_sid, error_message, created_at, updated_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(
		&m.ID, &m.ConversationID, &m.Content, &m.Direction, &m.Status, &m.ProviderSID, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// AppendMessage inserts a new row. An inbound message whose provider SID was
// already stored yields ErrDuplicate.
func (p *Postgres) AppendMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := p.db.QueryRow(ctx, `
        INSERT INTO messages (id, conversation_id, content, direction, status, provider_sid, error_message)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT DO NOTHING
        RETURNING created_at, updated_at
    `, m.ID, m.ConversationID, m.Content, m.Direction, m.Status, m.ProviderSID, m.ErrorMessage).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// UpdateMessageStatus patches the row in place; earlier states are not kept.
func (p *Postgres) UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus, providerSID, errMsg *string) (*models.Message, error) {
	m, err := scanMessage(p.db.QueryRow(ctx, `
        UPDATE messages
        SET status = $2,
            provider_sid = COALESCE($3, provider_sid),
            error_message = $4,
            updated_at = now()
        WHERE id = $1
        RETURNING `+messageColumns, id, status, providerSID, errMsg))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// UpdateMessageStatusBySID applies a provider status callback. A settled
// message is never moved back to pending or sent; that case reports ErrNotFound.
func (p *Postgres) UpdateMessageStatusBySID(ctx context.Context, sid string, status models.MessageStatus, errMsg *string) (*models.Message, error) {
	m, err := scanMessage(p.db.QueryRow(ctx, `
        UPDATE messages
        SET status = $2, error_message = COALESCE($3, error_message), updated_at = now()
        WHERE provider_sid = $1 AND direction = 'outbound'
          AND NOT (status IN ('delivered', 'failed') AND $2 IN ('pending', 'sent'))
        RETURNING `+messageColumns, sid, status, errMsg))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (p *Postgres) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := p.db.Query(ctx, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at
    `, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	res := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}
