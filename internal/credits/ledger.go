// Package credits enforces per-user SMS and voice balances.
package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
	"twoway-sms/internal/store"
)

// ErrInsufficient reports a debit that lost to a concurrent one.
var ErrInsufficient = errors.New("insufficient credits")

type Store interface {
	store.Credits
	store.Usage
}

type Ledger struct {
	store Store
}

func NewLedger(s Store) *Ledger {
	return &Ledger{store: s}
}

// CheckBalance returns the current balance of kind; a user without a credit
// row has zero.
func (l *Ledger) CheckBalance(ctx context.Context, userID string, kind models.CreditKind) (int, error) {
	c, err := l.store.GetCredits(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get credits: %w", err)
	}
	return c.Of(kind), nil
}

// Require fails with an insufficient-credits error when the balance is below amount.
func (l *Ledger) Require(ctx context.Context, userID string, kind models.CreditKind, amount int) error {
	bal, err := l.CheckBalance(ctx, userID, kind)
	if err != nil {
		return apperr.Internal(err)
	}
	if bal < amount {
		return insufficient(kind)
	}
	return nil
}

func insufficient(kind models.CreditKind) *apperr.Error {
	if kind == models.CreditVoice {
		return apperr.InsufficientCredits("Insufficient voice credits")
	}
	return apperr.InsufficientCredits("Insufficient credits")
}

// Decrement debits amount and appends a usage record with details. When the
// conditional debit matches no row nothing is written and ErrInsufficient is
// returned.
func (l *Ledger) Decrement(ctx context.Context, userID string, kind models.CreditKind, amount int, details any) error {
	ok, err := l.store.DebitCredits(ctx, userID, kind, amount)
	if err != nil {
		return fmt.Errorf("debit credits: %w", err)
	}
	if !ok {
		return ErrInsufficient
	}

	raw, err := json.Marshal(details)
	if err != nil || details == nil {
		raw = []byte(`{}`)
	}
	rec := &models.UsageRecord{UserID: userID, Type: kind, CreditsUsed: amount, Details: raw}
	if err := l.store.RecordUsage(ctx, rec); err != nil {
		// the debit already happened; losing the audit row is logged, not surfaced
		logger.Error().Err(err).Str("user_id", userID).Str("kind", string(kind)).Msg("record usage")
	}
	return nil
}

// Adjust applies an admin add or deduct; balances are clamped at zero.
func (l *Ledger) Adjust(ctx context.Context, userID string, typ models.CreditTransactionType, sms, voice int, description string) (*models.UserCredits, error) {
	if typ != models.CreditTransactionAdd && typ != models.CreditTransactionDeduct {
		return nil, apperr.Validation("type must be add or deduct")
	}
	if sms < 0 || voice < 0 {
		return nil, apperr.Validation("credit amounts must not be negative")
	}
	if sms == 0 && voice == 0 {
		return nil, apperr.Validation("no credit amount given")
	}
	if description == "" {
		description = fmt.Sprintf("Admin %s: %d SMS, %d voice", typ, sms, voice)
	}

	c, err := l.store.AdjustCredits(ctx, &models.CreditTransaction{
		UserID:       userID,
		Type:         typ,
		SMSCredits:   sms,
		VoiceCredits: voice,
		Description:  description,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logger.Info().Str("user_id", userID).Str("type", string(typ)).
		Int("sms", sms).Int("voice", voice).Msg("credits adjusted")
	return c, nil
}
