package messaging

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"twoway-sms/internal/credits"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
	"twoway-sms/internal/realtime"
	"twoway-sms/internal/store"
)

// MessageStatusFromProvider maps a provider MessageStatus value onto ours.
func MessageStatusFromProvider(s string) (models.MessageStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted", "scheduled", "queued", "sending", "sent":
		return models.MessageStatusSent, true
	case "delivered", "received", "read":
		return models.MessageStatusDelivered, true
	case "failed", "undelivered", "canceled":
		return models.MessageStatusFailed, true
	}
	return "", false
}

// CallStatusFromProvider maps a provider CallStatus value onto ours.
func CallStatusFromProvider(s string) (models.CallStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "initiated":
		return models.CallStatusInitiated, true
	case "ringing":
		return models.CallStatusRinging, true
	case "in-progress", "answered":
		return models.CallStatusInProgress, true
	case "completed":
		return models.CallStatusCompleted, true
	case "busy", "no-answer", "failed", "canceled":
		return models.CallStatusFailed, true
	}
	return "", false
}

// StatusCallback patches an outbound message's status in place.
func (s *Service) StatusCallback(ctx context.Context, sid, providerStatus, errorMessage string) error {
	status, ok := MessageStatusFromProvider(providerStatus)
	if !ok || sid == "" {
		logger.Debug().Str("provider_sid", sid).Str("status", providerStatus).Msg("status callback ignored")
		return nil
	}

	var errMsg *string
	if status == models.MessageStatusFailed && errorMessage != "" {
		errMsg = &errorMessage
	}
	m, err := s.store.UpdateMessageStatusBySID(ctx, sid, status, errMsg)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug().Str("provider_sid", sid).Msg("status callback for unknown or settled message")
		return nil
	}
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}

	if owner, err := s.store.ConversationOwner(ctx, m.ConversationID); err == nil {
		s.publishMessage(ctx, realtime.MessageUpdated, owner, m)
	}
	return nil
}

// CallMinutes is the voice charge for a call of duration seconds: whole
// minutes rounded up, at least one.
func CallMinutes(duration int) int {
	m := int(math.Ceil(float64(duration) / 60))
	if m < 1 {
		m = 1
	}
	return m
}

// CallStatusCallback advances a call and, once it completed, debits voice
// credits. Calls already in a terminal state are left alone so redelivered
// callbacks never charge twice.
func (s *Service) CallStatusCallback(ctx context.Context, sid, providerStatus string, duration int) error {
	status, ok := CallStatusFromProvider(providerStatus)
	if !ok || sid == "" {
		return nil
	}

	call, err := s.store.UpdateCallStatusBySID(ctx, sid, status, duration)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug().Str("provider_sid", sid).Str("status", providerStatus).Msg("call status callback ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("update call status: %w", err)
	}
	if status != models.CallStatusCompleted {
		return nil
	}

	minutes := CallMinutes(call.Duration)
	details := map[string]any{
		"call_id":         call.ID,
		"phone_number_id": call.PhoneNumberID,
		"recipient":       call.RecipientNumber,
		"duration":        call.Duration,
	}
	err = s.ledger.Decrement(ctx, call.UserID, models.CreditVoice, minutes, details)
	if errors.Is(err, credits.ErrInsufficient) {
		// charge what is left rather than nothing
		bal, balErr := s.ledger.CheckBalance(ctx, call.UserID, models.CreditVoice)
		if balErr == nil && bal > 0 {
			err = s.ledger.Decrement(ctx, call.UserID, models.CreditVoice, bal, details)
		}
		logger.Warn().Str("user_id", call.UserID).Str("call_id", call.ID).
			Int("minutes", minutes).Int("balance", bal).Msg("voice balance did not cover call")
	}
	if err != nil && !errors.Is(err, credits.ErrInsufficient) {
		return fmt.Errorf("debit voice credits: %w", err)
	}
	return nil
}
