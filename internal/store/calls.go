package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"twoway-sms/internal/models"
)

const callColumns = `id, user_id, phone_number_id, recipient_number, direction, duration, status, provider_sid, error_message, created_at, updated_at`

func scanCall(row pgx.Row) (*models.Call, error) {
	var c models.Call
	if err := row.Scan(
		&c.ID, &c.UserID, &c.PhoneNumberID, &c.RecipientNumber, &c.Direction, &c.Duration, &c.Status,
		&c.ProviderSID, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Postgres) CreateCall(ctx context.Context, c *models.Call) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := p.db.QueryRow(ctx, `
        INSERT INTO calls (id, user_id, phone_number_id, recipient_number, direction, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at, updated_at
    `, c.ID, c.UserID, c.PhoneNumberID, c.RecipientNumber, c.Direction, c.Status).Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (p *Postgres) GetCall(ctx context.Context, id string) (*models.Call, error) {
	c, err := scanCall(p.db.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (p *Postgres) UpdateCallStatus(ctx context.Context, id string, status models.CallStatus, providerSID, errMsg *string) error {
	tag, err := p.db.Exec(ctx, `
        UPDATE calls
        SET status = $2, provider_sid = COALESCE($3, provider_sid), error_message = $4, updated_at = now()
        WHERE id = $1
    `, id, status, providerSID, errMsg)
	if err != nil {
		return fmt.Errorf("update call: %w", notFound(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCallStatusBySID moves a live call forward. Calls already completed or
// failed are left alone and reported as ErrNotFound.
func (p *Postgres) UpdateCallStatusBySID(ctx context.Context, sid string, status models.CallStatus, duration int) (*models.Call, error) {
	c, err := scanCall(p.db.QueryRow(ctx, `
        UPDATE calls
        SET status = $2, duration = GREATEST(duration, $3), updated_at = now()
        WHERE provider_sid = $1 AND status NOT IN ('completed', 'failed')
        RETURNING `+callColumns, sid, status, duration))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListCalls returns the newest calls matching f.
func (p *Postgres) ListCalls(ctx context.Context, f CallFilter) ([]models.Call, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, cond+" $"+strconv.Itoa(len(args)))
	}
	if f.UserID != "" {
		add("user_id =", f.UserID)
	}
	if f.Recipient != "" {
		add("recipient_number =", f.Recipient)
	}
	if f.Status != "" {
		add("status =", f.Status)
	}
	if !f.From.IsZero() {
		add("created_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <=", f.To)
	}

	query := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + strconv.Itoa(f.EffectiveLimit())

	rows, err := p.db.Query(ctx, query, args...)
	if errors.Is(notFound(err), ErrNotFound) {
		return []models.Call{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	out := []models.Call{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
