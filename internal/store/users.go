package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"twoway-sms/internal/models"
)

const userColumns = `id, email, username, name, role, preferred_provider, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Name, &u.Role,
		&u.PreferredProvider, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts the user and its credit row together.
func (p *Postgres) CreateUser(ctx context.Context, u *models.User, smsCredits, voiceCredits int) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return p.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
            INSERT INTO users (id, email, username, name, role, preferred_provider, password_hash)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            RETURNING created_at, updated_at
        `, u.ID, u.Email, u.Username, u.Name, u.Role, u.PreferredProvider, u.PasswordHash).
			Scan(&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert user: %w", err)
		}

		if _, err := tx.Exec(ctx, `
            INSERT INTO user_credits (user_id, sms_credits, voice_credits)
            VALUES ($1, $2, $3)
        `, u.ID, smsCredits, voiceCredits); err != nil {
			return fmt.Errorf("insert credits: %w", err)
		}
		return nil
	})
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (p *Postgres) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	column := "username"
	if strings.Contains(login, "@") {
		column = "email"
		login = strings.ToLower(login)
	}
	u, err := scanUser(p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, login))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (p *Postgres) GetUserDetail(ctx context.Context, id string) (*models.UserDetail, error) {
	u, err := p.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &models.UserDetail{User: *u}

	credits, err := p.GetCredits(ctx, id)
	switch {
	case err == nil:
		d.Credits = credits
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	numbers, err := p.ListPhoneNumbersByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	d.PhoneNumbers = numbers
	return d, nil
}

// ListUsers returns users of the given role (all when role is empty) with credits.
func (p *Postgres) ListUsers(ctx context.Context, role models.Role) ([]models.UserDetail, error) {
	rows, err := p.db.Query(ctx, `
        SELECT u.id, u.email, u.username, u.name, u.role, u.preferred_provider, u.password_hash,
               u.created_at, u.updated_at,
               c.sms_credits, c.voice_credits
        FROM users u
        LEFT JOIN user_credits c ON c.user_id = u.id
        WHERE ($1 = '' OR u.role = $1)
        ORDER BY u.email NULLS LAST, u.username
    `, string(role))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var res []models.UserDetail
	for rows.Next() {
		var (
			d          models.UserDetail
			sms, voice *int
		)
		if err := rows.Scan(
			&d.ID, &d.Email, &d.Username, &d.Name, &d.Role, &d.PreferredProvider, &d.PasswordHash,
			&d.CreatedAt, &d.UpdatedAt, &sms, &voice,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if sms != nil && voice != nil {
			d.Credits = &models.UserCredits{UserID: d.ID, SMSCredits: *sms, VoiceCredits: *voice}
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (p *Postgres) SetPreferredProvider(ctx context.Context, id string, provider *models.Provider) (*models.User, error) {
	u, err := scanUser(p.db.QueryRow(ctx, `
        UPDATE users SET preferred_provider = $2, updated_at = now()
        WHERE id = $1
        RETURNING `+userColumns, id, provider))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}
