package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"twoway-sms/internal/models"
)

const phoneColumns = `id, number, provider, provider_sid, user_id, is_active, created_at, updated_at`

func scanPhoneNumber(row pgx.Row) (*models.PhoneNumber, error) {
	var n models.PhoneNumber
	if err := row.Scan(
		&n.ID, &n.Number, &n.Provider, &n.ProviderSID, &n.UserID, &n.IsActive, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

func (p *Postgres) CreatePhoneNumber(ctx context.Context, n *models.PhoneNumber) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	err := p.db.QueryRow(ctx, `
        INSERT INTO phone_numbers (id, number, provider, provider_sid, user_id, is_active)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at, updated_at
    `, n.ID, n.Number, n.Provider, n.ProviderSID, n.UserID, n.IsActive).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert phone number: %w", err)
	}
	return nil
}

func (p *Postgres) GetPhoneNumber(ctx context.Context, id string) (*models.PhoneNumber, error) {
	n, err := scanPhoneNumber(p.db.QueryRow(ctx, `SELECT `+phoneColumns+` FROM phone_numbers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (p *Postgres) GetPhoneNumberByNumber(ctx context.Context, number string) (*models.PhoneNumber, error) {
	n, err := scanPhoneNumber(p.db.QueryRow(ctx, `SELECT `+phoneColumns+` FROM phone_numbers WHERE number = $1`, number))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (p *Postgres) GetOwnedPhoneNumber(ctx context.Context, id, userID string) (*models.PhoneNumber, error) {
	n, err := scanPhoneNumber(p.db.QueryRow(ctx,
		`SELECT `+phoneColumns+` FROM phone_numbers WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (p *Postgres) ListPhoneNumbers(ctx context.Context) ([]models.PhoneNumberWithOwner, error) {
	rows, err := p.db.Query(ctx, `
        SELECT n.id, n.number, n.provider, n.provider_sid, n.user_id, n.is_active, n.created_at, n.updated_at,
               u.name, u.username, u.email
        FROM phone_numbers n
        LEFT JOIN users u ON u.id = n.user_id
        ORDER BY n.created_at DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("list phone numbers: %w", err)
	}
	defer rows.Close()

	var res []models.PhoneNumberWithOwner
	for rows.Next() {
		var (
			n               models.PhoneNumberWithOwner
			name            *string
			username, email *string
		)
		if err := rows.Scan(
			&n.ID, &n.Number, &n.Provider, &n.ProviderSID, &n.UserID, &n.IsActive, &n.CreatedAt, &n.UpdatedAt,
			&name, &username, &email,
		); err != nil {
			return nil, fmt.Errorf("scan phone number: %w", err)
		}
		if n.UserID != nil && name != nil {
			n.Owner = &models.UserSummary{ID: *n.UserID, Name: *name, Username: username, Email: email}
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (p *Postgres) ListPhoneNumbersByUser(ctx context.Context, userID string) ([]models.PhoneNumber, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+phoneColumns+` FROM phone_numbers WHERE user_id = $1 ORDER BY number`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user phone numbers: %w", err)
	}
	defer rows.Close()

	res := []models.PhoneNumber{}
	for rows.Next() {
		n, err := scanPhoneNumber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phone number: %w", err)
		}
		res = append(res, *n)
	}
	return res, rows.Err()
}

// AssignPhoneNumber sets the owner only when the number is unowned.
func (p *Postgres) AssignPhoneNumber(ctx context.Context, id, userID string) error {
	tag, err := p.db.Exec(ctx, `
        UPDATE phone_numbers SET user_id = $2, updated_at = now()
        WHERE id = $1 AND user_id IS NULL
    `, id, userID)
	if err != nil {
		return fmt.Errorf("assign phone number: %w", notFound(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := p.GetPhoneNumber(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

// UnassignPhoneNumber clears the owner only when the number has one.
func (p *Postgres) UnassignPhoneNumber(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `
        UPDATE phone_numbers SET user_id = NULL, updated_at = now()
        WHERE id = $1 AND user_id IS NOT NULL
    `, id)
	if err != nil {
		return fmt.Errorf("unassign phone number: %w", notFound(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := p.GetPhoneNumber(ctx, id); err != nil {
		return err
	}
	return ErrNotAssigned
}

func (p *Postgres) SetPhoneNumberActive(ctx context.Context, id string, active bool) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE phone_numbers SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set phone number active: %w", notFound(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
