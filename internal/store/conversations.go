package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"twoway-sms/internal/models"
)

const conversationColumns = `id, user_id, phone_number_id, recipient_number, unread_count, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(
		&c.ID, &c.UserID, &c.PhoneNumberID, &c.RecipientNumber, &c.UnreadCount, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreateConversation returns the single conversation for
// (user, phone number, recipient), creating it on first use. The upsert
// keeps two concurrent first messages on one row.
func (p *Postgres) FindOrCreateConversation(ctx context.Context, userID, phoneNumberID, recipient string) (*models.Conversation, error) {
	c, err := scanConversation(p.db.QueryRow(ctx, `
        INSERT INTO conversations (id, user_id, phone_number_id, recipient_number)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, phone_number_id, recipient_number)
        DO UPDATE SET updated_at = conversations.updated_at
        RETURNING `+conversationColumns,
		uuid.NewString(), userID, phoneNumberID, recipient))
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}
	return c, nil
}

func (p *Postgres) GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	c, err := scanConversation(p.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (p *Postgres) ConversationOwner(ctx context.Context, id string) (string, error) {
	var userID string
	if err := p.db.QueryRow(ctx, `SELECT user_id FROM conversations WHERE id = $1`, id).Scan(&userID); err != nil {
		return "", notFound(err)
	}
	return userID, nil
}

func (p *Postgres) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := p.db.Query(ctx, `
        SELECT `+conversationColumns+`
        FROM conversations
        WHERE user_id = $1
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	res := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, *c)
	}
	return res, rows.Err()
}

func (p *Postgres) TouchConversation(ctx context.Context, id string, at time.Time) error {
	if _, err := p.db.Exec(ctx,
		`UPDATE conversations SET last_message_at = $2, updated_at = now() WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// IncrementUnread bumps the counter in the database, never from a value read earlier.
func (p *Postgres) IncrementUnread(ctx context.Context, id string, at time.Time) error {
	if _, err := p.db.Exec(ctx, `
        UPDATE conversations
        SET unread_count = unread_count + 1, last_message_at = $2, updated_at = now()
        WHERE id = $1
    `, id, at); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

func (p *Postgres) MarkConversationRead(ctx context.Context, id, userID string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE conversations SET unread_count = 0, updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", notFound(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
