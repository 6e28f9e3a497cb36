// Package messaging runs the outbound send path, the inbound webhook state
// machine and the provider status callbacks.
package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/credits"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
	"twoway-sms/internal/phone"
	"twoway-sms/internal/provider"
	"twoway-sms/internal/realtime"
	"twoway-sms/internal/store"
)

type Service struct {
	store     store.Store
	ledger    *credits.Ledger
	providers *provider.Registry
	events    realtime.Publisher
	baseURL   string
	now       func() time.Time
}

// NewService wires the send and receive paths. baseURL is the public URL
// providers use to fetch call documents. events may be nil.
func NewService(st store.Store, ledger *credits.Ledger, providers *provider.Registry, events realtime.Publisher, baseURL string) *Service {
	if events == nil {
		events = realtime.Nop{}
	}
	return &Service{
		store:     st,
		ledger:    ledger,
		providers: providers,
		events:    events,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
}

type SendRequest struct {
	PhoneNumberID string
	Recipient     string
	Body          string
	// Provider overrides every other selection signal when set.
	Provider models.Provider
}

type SendResult struct {
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	ProviderSID    string          `json:"provider_sid"`
	Provider       models.Provider `json:"provider"`
}

// SendSMS delivers one outbound message. The balance is checked before the
// provider is called and debited only after it accepted the message.
func (s *Service) SendSMS(ctx context.Context, user *models.User, req SendRequest) (*SendResult, error) {
	if req.PhoneNumberID == "" || strings.TrimSpace(req.Recipient) == "" || req.Body == "" {
		return nil, apperr.Validation("Missing required fields")
	}
	if !phone.Validate(req.Recipient) {
		return nil, apperr.Validation("Invalid recipient number")
	}

	number, err := s.ownedNumber(ctx, user.ID, req.PhoneNumberID)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, user, number, phone.Normalize(req.Recipient), req.Body, req.Provider)
}

func (s *Service) ownedNumber(ctx context.Context, userID, phoneNumberID string) (*models.PhoneNumber, error) {
	n, err := s.store.GetOwnedPhoneNumber(ctx, phoneNumberID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Phone number not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return n, nil
}

func (s *Service) send(ctx context.Context, user *models.User, number *models.PhoneNumber, recipient, body string, override models.Provider) (*SendResult, error) {
	if err := s.ledger.Require(ctx, user.ID, models.CreditSMS, 1); err != nil {
		return nil, err
	}

	conv, err := s.store.FindOrCreateConversation(ctx, user.ID, number.ID, recipient)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Content:        body,
		Direction:      models.DirectionOutbound,
		Status:         models.MessageStatusPending,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, apperr.Internal(err)
	}
	s.publishMessage(ctx, realtime.MessageInserted, user.ID, msg)

	p := provider.Select(override, user.PreferredProvider, number.Provider)
	sid, sendErr := s.deliver(ctx, p, number.Number, recipient, body)
	if sendErr != nil {
		errText := sendErr.Error()
		updated, err := s.store.UpdateMessageStatus(ctx, msg.ID, models.MessageStatusFailed, nil, &errText)
		if err != nil {
			logger.Error().Err(err).Str("message_id", msg.ID).Msg("mark message failed")
		} else {
			s.publishMessage(ctx, realtime.MessageUpdated, user.ID, updated)
		}
		logger.Warn().Err(sendErr).Str("user_id", user.ID).Str("message_id", msg.ID).
			Str("provider", p.String()).Msg("sms send failed")
		return nil, apperr.Provider(errText)
	}

	updated, err := s.store.UpdateMessageStatus(ctx, msg.ID, models.MessageStatusSent, &sid, nil)
	if err != nil {
		logger.Error().Err(err).Str("message_id", msg.ID).Msg("mark message sent")
	} else {
		s.publishMessage(ctx, realtime.MessageUpdated, user.ID, updated)
	}
	if err := s.store.TouchConversation(ctx, conv.ID, s.now()); err != nil {
		logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("touch conversation")
	}
	s.publishConversation(ctx, user.ID, conv.ID)

	details := map[string]string{
		"phone_number_id": number.ID,
		"recipient":       recipient,
		"message_id":      msg.ID,
		"provider":        p.String(),
	}
	switch err := s.ledger.Decrement(ctx, user.ID, models.CreditSMS, 1, details); {
	case errors.Is(err, credits.ErrInsufficient):
		logger.Warn().Str("user_id", user.ID).Str("message_id", msg.ID).Msg("credit spent by a concurrent send; message not charged")
	case err != nil:
		logger.Error().Err(err).Str("user_id", user.ID).Str("message_id", msg.ID).Msg("debit sms credit")
	}

	logger.Info().Str("user_id", user.ID).Str("message_id", msg.ID).
		Str("provider", p.String()).Str("provider_sid", sid).Msg("sms sent")
	return &SendResult{MessageID: msg.ID, ConversationID: conv.ID, ProviderSID: sid, Provider: p}, nil
}

// deliver hands the message to provider p; an unconfigured provider is an
// ordinary send failure.
func (s *Service) deliver(ctx context.Context, p models.Provider, from, to, body string) (string, error) {
	client, err := s.providers.Get(p)
	if err != nil {
		return "", err
	}
	return client.SendSMS(ctx, from, to, body)
}

type Recipient struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

type BulkRequest struct {
	PhoneNumberID string
	Recipients    []Recipient
	Message       string
}

type BulkFailure struct {
	Number string `json:"number"`
	Error  string `json:"error"`
}

type BulkResult struct {
	Successful int           `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// Personalize fills {name} with the recipient name, "there" when it is empty.
func Personalize(template, name string) string {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	return strings.ReplaceAll(template, "{name}", name)
}

// BulkSend sends the template to each recipient in turn. The whole batch is
// refused up front when the balance cannot cover every valid recipient.
func (s *Service) BulkSend(ctx context.Context, user *models.User, req BulkRequest) (*BulkResult, error) {
	if req.PhoneNumberID == "" || req.Message == "" || len(req.Recipients) == 0 {
		return nil, apperr.Validation("Missing required fields")
	}

	number, err := s.ownedNumber(ctx, user.ID, req.PhoneNumberID)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Failed: []BulkFailure{}}
	valid := make([]Recipient, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		if !phone.Validate(r.Number) {
			res.Failed = append(res.Failed, BulkFailure{Number: r.Number, Error: "Invalid phone number"})
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return res, nil
	}

	if err := s.ledger.Require(ctx, user.ID, models.CreditSMS, len(valid)); err != nil {
		return nil, err
	}

	for _, r := range valid {
		if ctx.Err() != nil {
			res.Failed = append(res.Failed, BulkFailure{Number: r.Number, Error: ctx.Err().Error()})
			continue
		}
		_, err := s.send(ctx, user, number, phone.Normalize(r.Number), Personalize(req.Message, r.Name), "")
		if err != nil {
			res.Failed = append(res.Failed, BulkFailure{Number: r.Number, Error: apperr.PublicMessage(err)})
			continue
		}
		res.Successful++
	}
	logger.Info().Str("user_id", user.ID).Int("successful", res.Successful).
		Int("failed", len(res.Failed)).Msg("bulk send finished")
	return res, nil
}

func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return convs, nil
}

// Messages lists a conversation the user owns, oldest first.
func (s *Service) Messages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Conversation not found")
		}
		return nil, apperr.Internal(err)
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return msgs, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, conversationID string) error {
	err := s.store.MarkConversationRead(ctx, conversationID, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("Conversation not found")
	case err != nil:
		return apperr.Internal(err)
	}
	s.publishConversation(ctx, userID, conversationID)
	return nil
}

type TestResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ProviderSID string `json:"message_id"`
}

// TestNumber sends a fixed text from the number through its own provider and
// records the outcome in is_active.
func (s *Service) TestNumber(ctx context.Context, phoneNumberID, testNumber string) (*TestResult, error) {
	if strings.TrimSpace(testNumber) == "" {
		return nil, apperr.Validation("Test number is required")
	}
	number, err := s.store.GetPhoneNumber(ctx, phoneNumberID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Phone number not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	body := "Test message from 2Way SMS Platform. Your " + number.Provider.String() +
		" phone number " + number.Number + " is working correctly!"
	sid, sendErr := s.deliver(ctx, number.Provider, number.Number, phone.Normalize(testNumber), body)

	if err := s.store.SetPhoneNumberActive(ctx, number.ID, sendErr == nil); err != nil {
		return nil, apperr.Internal(err)
	}
	if sendErr != nil {
		logger.Warn().Err(sendErr).Str("phone_number_id", number.ID).Msg("test sms failed")
		return nil, apperr.Validation(sendErr.Error())
	}
	return &TestResult{Success: true, Message: "Test SMS sent successfully", ProviderSID: sid}, nil
}

func (s *Service) publishMessage(ctx context.Context, typ realtime.EventType, userID string, m *models.Message) {
	s.events.Publish(ctx, realtime.Event{Type: typ, UserID: userID, ConversationID: m.ConversationID, Message: m})
}

func (s *Service) publishConversation(ctx context.Context, userID, conversationID string) {
	conv, err := s.store.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return
	}
	s.events.Publish(ctx, realtime.Event{Type: realtime.ConversationUpdated, UserID: userID, Conversation: conv})
}
