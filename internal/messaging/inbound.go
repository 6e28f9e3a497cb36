package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
	"twoway-sms/internal/phone"
	"twoway-sms/internal/realtime"
	"twoway-sms/internal/store"
)

// InboundSMS is a provider webhook payload reduced to what we store.
type InboundSMS struct {
	From        string
	To          string
	Body        string
	ProviderSID string
}

// Inbound records a message received on one of our numbers. Messages for
// unknown or unassigned numbers, and redeliveries of a provider SID already
// stored, are acknowledged without writing anything.
func (s *Service) Inbound(ctx context.Context, p models.Provider, in InboundSMS) error {
	to := phone.Normalize(in.To)
	from := phone.Normalize(in.From)

	number, err := s.store.GetPhoneNumberByNumber(ctx, to)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !number.Assigned()) {
		logger.Warn().Str("provider", p.String()).Str("to", to).Msg("inbound sms for unknown or unassigned number")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup number: %w", err)
	}
	owner := *number.UserID

	conv, err := s.store.FindOrCreateConversation(ctx, owner, number.ID, from)
	if err != nil {
		return fmt.Errorf("find conversation: %w", err)
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Content:        in.Body,
		Direction:      models.DirectionInbound,
		Status:         models.MessageStatusDelivered,
	}
	if sid := strings.TrimSpace(in.ProviderSID); sid != "" {
		msg.ProviderSID = &sid
	}
	err = s.store.AppendMessage(ctx, msg)
	if errors.Is(err, store.ErrDuplicate) {
		logger.Info().Str("provider", p.String()).Str("provider_sid", in.ProviderSID).Msg("duplicate inbound sms ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if err := s.store.IncrementUnread(ctx, conv.ID, s.now()); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}

	s.publishMessage(ctx, realtime.MessageInserted, owner, msg)
	s.publishConversation(ctx, owner, conv.ID)
	logger.Info().Str("provider", p.String()).Str("user_id", owner).
		Str("phone_number_id", number.ID).Str("message_id", msg.ID).Msg("inbound sms stored")
	return nil
}
