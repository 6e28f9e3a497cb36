package messaging

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/laml"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
	"twoway-sms/internal/phone"
	"twoway-sms/internal/provider"
	"twoway-sms/internal/store"
)

const (
	callGreeting       = "Connecting your call. Please wait."
	callMaxRecordSecs  = 3600
	callDialTimeoutSec = 30
)

type CallRequest struct {
	PhoneNumberID string
	Recipient     string
	Provider      models.Provider
}

type CallResult struct {
	CallID      string `json:"call_id"`
	ProviderSID string `json:"provider_sid"`
}

// PlaceCall starts an outbound call. Voice credits are only checked here;
// the charge happens when the provider reports the call completed.
func (s *Service) PlaceCall(ctx context.Context, user *models.User, req CallRequest) (*CallResult, error) {
	if req.PhoneNumberID == "" || strings.TrimSpace(req.Recipient) == "" {
		return nil, apperr.Validation("Missing required fields")
	}
	if !phone.Validate(req.Recipient) {
		return nil, apperr.Validation("Invalid recipient number")
	}

	number, err := s.ownedNumber(ctx, user.ID, req.PhoneNumberID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Require(ctx, user.ID, models.CreditVoice, 1); err != nil {
		return nil, err
	}

	call := &models.Call{
		UserID:          user.ID,
		PhoneNumberID:   number.ID,
		RecipientNumber: phone.Normalize(req.Recipient),
		Direction:       models.DirectionOutbound,
		Status:          models.CallStatusInitiated,
	}
	if err := s.store.CreateCall(ctx, call); err != nil {
		return nil, apperr.Internal(err)
	}

	p := provider.Select(req.Provider, user.PreferredProvider, number.Provider)
	lamlURL := s.baseURL + "/api/voice/laml?callId=" + url.QueryEscape(call.ID)

	var sid string
	client, callErr := s.providers.Get(p)
	if callErr == nil {
		sid, callErr = client.MakeCall(ctx, number.Number, call.RecipientNumber, lamlURL)
	}
	if callErr != nil {
		errText := callErr.Error()
		if err := s.store.UpdateCallStatus(ctx, call.ID, models.CallStatusFailed, nil, &errText); err != nil {
			logger.Error().Err(err).Str("call_id", call.ID).Msg("mark call failed")
		}
		logger.Warn().Err(callErr).Str("user_id", user.ID).Str("call_id", call.ID).
			Str("provider", p.String()).Msg("call failed")
		return nil, apperr.Provider(errText)
	}

	if err := s.store.UpdateCallStatus(ctx, call.ID, models.CallStatusRinging, &sid, nil); err != nil {
		logger.Error().Err(err).Str("call_id", call.ID).Msg("mark call ringing")
	}
	logger.Info().Str("user_id", user.ID).Str("call_id", call.ID).Str("provider", p.String()).
		Str("provider_sid", sid).Msg("call started")
	return &CallResult{CallID: call.ID, ProviderSID: sid}, nil
}

// CallLaML renders the document a provider fetches when the callee answers:
// a greeting, recording of the call, and the dial to the recipient with the
// owned number as caller id.
func (s *Service) CallLaML(ctx context.Context, callID string) ([]byte, error) {
	if callID == "" {
		return nil, apperr.Validation("Missing callId")
	}
	call, err := s.store.GetCall(ctx, callID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Call not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	number, err := s.store.GetPhoneNumber(ctx, call.PhoneNumberID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	recordingURL := s.baseURL + "/api/webhooks/" + number.Provider.String() + "/recording?callId=" + url.QueryEscape(call.ID)
	doc := laml.New(
		laml.Say{Voice: "alice", Language: "en-US", Text: callGreeting},
		laml.Record{MaxLength: callMaxRecordSecs, RecordingStatusCallback: recordingURL},
		laml.Dial{
			CallerID: number.Number,
			Timeout:  callDialTimeoutSec,
			Numbers:  []laml.Number{{Value: call.RecipientNumber}},
		},
	)
	body, err := doc.Marshal()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return body, nil
}
