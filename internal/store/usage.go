package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"twoway-sms/internal/models"
)

// RecordUsage appends an audit row; usage records are never updated.
func (p *Postgres) RecordUsage(ctx context.Context, r *models.UsageRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	details := r.Details
	if len(details) == 0 {
		details = []byte(`{}`)
	}
	if err := p.db.QueryRow(ctx, `
        INSERT INTO usage_records (id, user_id, type, credits_used, details)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at
    `, r.ID, r.UserID, r.Type, r.CreditsUsed, details).Scan(&r.CreatedAt); err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}
