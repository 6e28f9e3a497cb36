package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"twoway-sms/internal/models"
)

func (p *Postgres) GetCredits(ctx context.Context, userID string) (*models.UserCredits, error) {
	var c models.UserCredits
	err := p.db.QueryRow(ctx, `
        SELECT user_id, sms_credits, voice_credits, created_at, updated_at
        FROM user_credits WHERE user_id = $1
    `, userID).Scan(&c.UserID, &c.SMSCredits, &c.VoiceCredits, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func debitSQL(kind models.CreditKind) (string, error) {
	switch kind {
	case models.CreditSMS:
		return `UPDATE user_credits SET sms_credits = sms_credits - $2, updated_at = now()
            WHERE user_id = $1 AND sms_credits >= $2`, nil
	case models.CreditVoice:
		return `UPDATE user_credits SET voice_credits = voice_credits - $2, updated_at = now()
            WHERE user_id = $1 AND voice_credits >= $2`, nil
	default:
		return "", fmt.Errorf("unknown credit kind %q", kind)
	}
}

// DebitCredits is a single conditional UPDATE, so concurrent debits can
// never take the balance below zero.
func (p *Postgres) DebitCredits(ctx context.Context, userID string, kind models.CreditKind, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	query, err := debitSQL(kind)
	if err != nil {
		return false, err
	}
	tag, err := p.db.Exec(ctx, query, userID, amount)
	if err != nil {
		return false, fmt.Errorf("debit %s credits: %w", kind, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) AdjustCredits(ctx context.Context, t *models.CreditTransaction) (*models.UserCredits, error) {
	smsDelta, voiceDelta := t.SMSCredits, t.VoiceCredits
	if t.Type == models.CreditTransactionDeduct {
		smsDelta, voiceDelta = -smsDelta, -voiceDelta
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	var c models.UserCredits
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
            INSERT INTO user_credits (user_id, sms_credits, voice_credits)
            VALUES ($1, GREATEST($2::int, 0), GREATEST($3::int, 0))
            ON CONFLICT (user_id) DO UPDATE
            SET sms_credits = GREATEST(user_credits.sms_credits + $2::int, 0),
                voice_credits = GREATEST(user_credits.voice_credits + $3::int, 0),
                updated_at = now()
            RETURNING user_id, sms_credits, voice_credits, created_at, updated_at
        `, t.UserID, smsDelta, voiceDelta).Scan(&c.UserID, &c.SMSCredits, &c.VoiceCredits, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert credits: %w", err)
		}

		if err := tx.QueryRow(ctx, `
            INSERT INTO credit_transactions (id, user_id, type, sms_credits, voice_credits, description)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING created_at
        `, t.ID, t.UserID, t.Type, t.SMSCredits, t.VoiceCredits, t.Description).Scan(&t.CreatedAt); err != nil {
			return fmt.Errorf("insert credit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}
