package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/credits"
	"twoway-sms/internal/models"
	"twoway-sms/internal/provider"
	"twoway-sms/internal/realtime"
	"twoway-sms/internal/store/memstore"
)

type fakeProvider struct {
	name models.Provider
	err  error

	mu    sync.Mutex
	sent  []string
	calls []string
	seq   atomic.Int64
}

func (f *fakeProvider) Name() models.Provider { return f.name }

func (f *fakeProvider) SendSMS(_ context.Context, from, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, to+"|"+body)
	f.mu.Unlock()
	return fmt.Sprintf("SM%d", f.seq.Add(1)), nil
}

func (f *fakeProvider) MakeCall(_ context.Context, from, to, lamlURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.calls = append(f.calls, lamlURL)
	f.mu.Unlock()
	return fmt.Sprintf("CA%d", f.seq.Add(1)), nil
}

func (f *fakeProvider) LookupNumber(context.Context, string) (*provider.NumberInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) AvailableNumbers(context.Context, string) ([]provider.NumberInfo, error) {
	return nil, nil
}

func (f *fakeProvider) PurchaseNumber(context.Context, string) (*provider.NumberInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, ev realtime.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

type fixture struct {
	store  *memstore.Store
	twilio *fakeProvider
	events *recorder
	svc    *Service
	user   *models.User
	number *models.PhoneNumber
}

const ownedNumber = "+15551230000"

func newFixture(t *testing.T, sms, voice int, clients ...provider.Client) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{store: memstore.New(), twilio: &fakeProvider{name: models.ProviderTwilio}, events: &recorder{}}
	if len(clients) == 0 {
		clients = []provider.Client{f.twilio}
	}

	email := "alice@example.com"
	f.user = &models.User{Email: &email, Name: "Alice", Role: models.RoleUser}
	require.NoError(t, f.store.CreateUser(ctx, f.user, sms, voice))

	f.number = &models.PhoneNumber{Number: ownedNumber, Provider: models.ProviderTwilio, IsActive: true}
	require.NoError(t, f.store.CreatePhoneNumber(ctx, f.number))
	require.NoError(t, f.store.AssignPhoneNumber(ctx, f.number.ID, f.user.ID))

	f.svc = NewService(f.store, credits.NewLedger(f.store), provider.NewRegistry(clients...), f.events, "https://sms.example.com/")
	return f
}

func (f *fixture) balance(t *testing.T, kind models.CreditKind) int {
	t.Helper()
	c, err := f.store.GetCredits(context.Background(), f.user.ID)
	require.NoError(t, err)
	return c.Of(kind)
}

func TestSendSMSDebitsAfterDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, 0)
	ctx := context.Background()

	res, err := f.svc.SendSMS(ctx, f.user, SendRequest{PhoneNumberID: f.number.ID, Recipient: "(555) 765-4321", Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, "SM1", res.ProviderSID)
	require.Equal(t, models.ProviderTwilio, res.Provider)
	require.Equal(t, 1, f.balance(t, models.CreditSMS))

	msgs, err := f.svc.Messages(ctx, f.user.ID, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.MessageStatusSent, msgs[0].Status)
	require.Equal(t, "SM1", *msgs[0].ProviderSID)

	convs, err := f.svc.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "+15557654321", convs[0].RecipientNumber)
	require.NotNil(t, convs[0].LastMessageAt)

	recs := f.store.UsageRecords()
	require.Len(t, recs, 1)
	require.Equal(t, 1, recs[0].CreditsUsed)
}

func TestSendSMSWithoutCreditsNeverCallsProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 0)

	_, err := f.svc.SendSMS(context.Background(), f.user, SendRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321", Body: "hi"})
	require.True(t, apperr.Is(err, apperr.CodeInsufficientCredits))
	require.Equal(t, "Insufficient credits", apperr.PublicMessage(err))
	require.Zero(t, f.twilio.sentCount())
	require.Zero(t, f.store.MessageCount())
}

func TestSendSMSSecondSendRefused(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, 0)
	ctx := context.Background()
	req := SendRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321", Body: "hi"}

	_, err := f.svc.SendSMS(ctx, f.user, req)
	require.NoError(t, err)

	_, err = f.svc.SendSMS(ctx, f.user, req)
	require.Equal(t, "Insufficient credits", apperr.PublicMessage(err))
	require.Equal(t, 1, f.twilio.sentCount())
	require.Zero(t, f.balance(t, models.CreditSMS))
}

func TestSendSMSValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5, 0)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SendRequest
		want string
		code apperr.Code
	}{
		{name: "missing body", req: SendRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321"}, want: "Missing required fields", code: apperr.CodeValidation},
		{name: "bad recipient", req: SendRequest{PhoneNumberID: f.number.ID, Recipient: "call me", Body: "x"}, want: "Invalid recipient number", code: apperr.CodeValidation},
		{name: "number not owned", req: SendRequest{PhoneNumberID: "other", Recipient: "+15557654321", Body: "x"}, want: "Phone number not found", code: apperr.CodeNotFound},
	}
	for _, tc := range tests {
		_, err := f.svc.SendSMS(ctx, f.user, tc.req)
		require.True(t, apperr.Is(err, tc.code), tc.name)
		require.Equal(t, tc.want, apperr.PublicMessage(err), tc.name)
	}
	require.Zero(t, f.twilio.sentCount())
}

func TestSendSMSUnconfiguredProviderFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3, 0)
	ctx := context.Background()

	res, err := f.svc.SendSMS(ctx, f.user, SendRequest{
		PhoneNumberID: f.number.ID, Recipient: "+15557654321", Body: "hi", Provider: models.ProviderSignalWire,
	})
	require.Nil(t, res)
	require.True(t, apperr.Is(err, apperr.CodeProvider))
	require.Equal(t, "SignalWire credentials not configured", apperr.PublicMessage(err))
	require.Equal(t, 3, f.balance(t, models.CreditSMS))

	convs, err := f.svc.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	msgs, err := f.svc.Messages(ctx, f.user.ID, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.MessageStatusFailed, msgs[0].Status)
	require.Equal(t, "SignalWire credentials not configured", *msgs[0].ErrorMessage)
}

func TestSendSMSProviderErrorSurfaces(t *testing.T) {
	t.Parallel()

	tw := &fakeProvider{name: models.ProviderTwilio, err: &provider.APIError{Provider: models.ProviderTwilio, Status: 400, Message: "The 'To' number is not a valid phone number."}}
	f := newFixture(t, 3, 0, tw)

	_, err := f.svc.SendSMS(context.Background(), f.user, SendRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321", Body: "hi"})
	require.Equal(t, "The 'To' number is not a valid phone number.", apperr.PublicMessage(err))
	require.Equal(t, 3, f.balance(t, models.CreditSMS))
}

func TestConcurrentSendsNeverOverdraw(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.SendSMS(ctx, f.user, SendRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321", Body: "hi"})
		}()
	}
	wg.Wait()

	require.GreaterOrEqual(t, f.balance(t, models.CreditSMS), 0)
	require.LessOrEqual(t, len(f.store.UsageRecords()), 3)
}

func TestBulkSendPersonalizes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5, 0)

	res, err := f.svc.BulkSend(context.Background(), f.user, BulkRequest{
		PhoneNumberID: f.number.ID,
		Message:       "Hello {name}, bye {name}",
		Recipients: []Recipient{
			{Number: "+15550000001", Name: "Bob"},
			{Number: "+15550000002"},
			{Number: "nope"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Successful)
	require.Equal(t, []BulkFailure{{Number: "nope", Error: "Invalid phone number"}}, res.Failed)
	require.ElementsMatch(t, []string{
		"+15550000001|Hello Bob, bye Bob",
		"+15550000002|Hello there, bye there",
	}, f.twilio.sent)
	require.Equal(t, 3, f.balance(t, models.CreditSMS))
}

func TestBulkSendRefusedUpFront(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, 0)

	_, err := f.svc.BulkSend(context.Background(), f.user, BulkRequest{
		PhoneNumberID: f.number.ID,
		Message:       "hi",
		Recipients:    []Recipient{{Number: "+15550000001"}, {Number: "+15550000002"}},
	})
	require.True(t, apperr.Is(err, apperr.CodeInsufficientCredits))
	require.Zero(t, f.twilio.sentCount())
}

func TestInboundUnknownNumberWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 0)

	err := f.svc.Inbound(context.Background(), models.ProviderTwilio, InboundSMS{From: "+15557654321", To: "+15559999999", Body: "hi", ProviderSID: "SMx"})
	require.NoError(t, err)
	require.Zero(t, f.store.MessageCount())
	require.Empty(t, f.events.events)
}

func TestInboundUnassignedNumberWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 0)
	ctx := context.Background()
	require.NoError(t, f.store.UnassignPhoneNumber(ctx, f.number.ID))

	require.NoError(t, f.svc.Inbound(ctx, models.ProviderTwilio, InboundSMS{From: "+15557654321", To: ownedNumber, Body: "hi"}))
	require.Zero(t, f.store.MessageCount())
}

func TestInboundThreadsAndCountsUnread(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.Inbound(ctx, models.ProviderTwilio, InboundSMS{From: "5557654321", To: "15551230000", Body: "one", ProviderSID: "SM1"}))
	require.NoError(t, f.svc.Inbound(ctx, models.ProviderTwilio, InboundSMS{From: "+15557654321", To: ownedNumber, Body: "two", ProviderSID: "SM2"}))

	convs, err := f.svc.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, 2, convs[0].UnreadCount)

	msgs, err := f.svc.Messages(ctx, f.user.ID, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, models.DirectionInbound, msgs[0].Direction)
	require.Equal(t, models.MessageStatusDelivered, msgs[0].Status)

	require.NoError(t, f.svc.MarkRead(ctx, f.user.ID, convs[0].ID))
	convs, err = f.svc.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	require.Zero(t, convs[0].UnreadCount)
}

func TestInboundRedeliveryIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 0)
	ctx := context.Background()
	in := InboundSMS{From: "+15557654321", To: ownedNumber, Body: "hi", ProviderSID: "SMdup"}

	require.NoError(t, f.svc.Inbound(ctx, models.ProviderTwilio, in))
	require.NoError(t, f.svc.Inbound(ctx, models.ProviderTwilio, in))

	require.Equal(t, 1, f.store.MessageCount())
	convs, err := f.svc.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, convs[0].UnreadCount)
}

func TestInboundPublishesToOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 0)

	require.NoError(t, f.svc.Inbound(context.Background(), models.ProviderSignalWire, InboundSMS{From: "+15557654321", To: ownedNumber, Body: "hi"}))

	require.Len(t, f.events.events, 2)
	require.Equal(t, realtime.MessageInserted, f.events.events[0].Type)
	require.Equal(t, f.user.ID, f.events.events[0].UserID)
	require.Equal(t, realtime.ConversationUpdated, f.events.events[1].Type)
}

func TestMessagesOfAnotherUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, 0)
	ctx := context.Background()
	res, err := f.svc.SendSMS(ctx, f.user, SendRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321", Body: "hi"})
	require.NoError(t, err)

	_, err = f.svc.Messages(ctx, "someone-else", res.ConversationID)
	require.Equal(t, "Conversation not found", apperr.PublicMessage(err))
}

func TestStatusCallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, 0)
	ctx := context.Background()
	res, err := f.svc.SendSMS(ctx, f.user, SendRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321", Body: "hi"})
	require.NoError(t, err)

	require.NoError(t, f.svc.StatusCallback(ctx, res.ProviderSID, "undelivered", "Carrier rejected"))
	msgs, err := f.svc.Messages(ctx, f.user.ID, res.ConversationID)
	require.NoError(t, err)
	require.Equal(t, models.MessageStatusFailed, msgs[0].Status)
	require.Equal(t, "Carrier rejected", *msgs[0].ErrorMessage)

	// a late "sent" callback does not undo a settled status
	require.NoError(t, f.svc.StatusCallback(ctx, res.ProviderSID, "sent", ""))
	msgs, err = f.svc.Messages(ctx, f.user.ID, res.ConversationID)
	require.NoError(t, err)
	require.Equal(t, models.MessageStatusFailed, msgs[0].Status)

	// unknown SIDs and statuses are acknowledged silently
	require.NoError(t, f.svc.StatusCallback(ctx, "SMunknown", "delivered", ""))
	require.NoError(t, f.svc.StatusCallback(ctx, res.ProviderSID, "bogus", ""))
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]models.MessageStatus{
		"queued":      models.MessageStatusSent,
		"Delivered":   models.MessageStatusDelivered,
		"undelivered": models.MessageStatusFailed,
	} {
		got, ok := MessageStatusFromProvider(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	for in, want := range map[string]models.CallStatus{
		"in-progress": models.CallStatusInProgress,
		"no-answer":   models.CallStatusFailed,
		"completed":   models.CallStatusCompleted,
	} {
		got, ok := CallStatusFromProvider(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := MessageStatusFromProvider("")
	require.False(t, ok)
}

func TestCallMinutes(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, CallMinutes(0))
	require.Equal(t, 1, CallMinutes(60))
	require.Equal(t, 2, CallMinutes(61))
	require.Equal(t, 3, CallMinutes(125))
}

func TestPlaceCallAndChargeOnCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 10)
	ctx := context.Background()

	res, err := f.svc.PlaceCall(ctx, f.user, CallRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321"})
	require.NoError(t, err)
	require.Equal(t, []string{"https://sms.example.com/api/voice/laml?callId=" + res.CallID}, f.twilio.calls)

	call, err := f.store.GetCall(ctx, res.CallID)
	require.NoError(t, err)
	require.Equal(t, models.CallStatusRinging, call.Status)
	require.Equal(t, 10, f.balance(t, models.CreditVoice))

	require.NoError(t, f.svc.CallStatusCallback(ctx, res.ProviderSID, "in-progress", 0))
	require.NoError(t, f.svc.CallStatusCallback(ctx, res.ProviderSID, "completed", 125))
	require.Equal(t, 7, f.balance(t, models.CreditVoice))

	// a redelivered completion must not charge again
	require.NoError(t, f.svc.CallStatusCallback(ctx, res.ProviderSID, "completed", 125))
	require.Equal(t, 7, f.balance(t, models.CreditVoice))
}

func TestCallCompletionChargesRemainder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 2)
	ctx := context.Background()

	res, err := f.svc.PlaceCall(ctx, f.user, CallRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321"})
	require.NoError(t, err)

	require.NoError(t, f.svc.CallStatusCallback(ctx, res.ProviderSID, "completed", 600))
	require.Zero(t, f.balance(t, models.CreditVoice))
}

func TestPlaceCallWithoutVoiceCredits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 0)

	_, err := f.svc.PlaceCall(context.Background(), f.user, CallRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321"})
	require.Equal(t, "Insufficient voice credits", apperr.PublicMessage(err))
	require.Empty(t, f.twilio.calls)
}

func TestPlaceCallProviderFailure(t *testing.T) {
	t.Parallel()

	tw := &fakeProvider{name: models.ProviderTwilio, err: errors.New("busy signal")}
	f := newFixture(t, 0, 5, tw)

	_, err := f.svc.PlaceCall(context.Background(), f.user, CallRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321"})
	require.True(t, apperr.Is(err, apperr.CodeProvider))
	require.Equal(t, "busy signal", apperr.PublicMessage(err))
}

func TestCallLaML(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 5)
	ctx := context.Background()

	res, err := f.svc.PlaceCall(ctx, f.user, CallRequest{PhoneNumberID: f.number.ID, Recipient: "+15557654321"})
	require.NoError(t, err)

	body, err := f.svc.CallLaML(ctx, res.CallID)
	require.NoError(t, err)
	doc := string(body)
	require.True(t, strings.HasPrefix(doc, "<?xml"))
	require.Contains(t, doc, `<Say voice="alice" language="en-US">Connecting your call. Please wait.</Say>`)
	require.Contains(t, doc, `maxLength="3600"`)
	require.Contains(t, doc, `recordingStatusCallback="https://sms.example.com/api/webhooks/twilio/recording?callId=`+res.CallID+`"`)
	require.Contains(t, doc, `callerId="`+ownedNumber+`"`)
	require.Contains(t, doc, `timeout="30"`)
	require.Contains(t, doc, `<Number>+15557654321</Number>`)

	_, err = f.svc.CallLaML(ctx, "missing")
	require.Equal(t, "Call not found", apperr.PublicMessage(err))
}

func TestTestNumberTracksActive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, 0)
	ctx := context.Background()

	res, err := f.svc.TestNumber(ctx, f.number.ID, "+15557654321")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{"+15557654321|Test message from 2Way SMS Platform. Your twilio phone number " + ownedNumber + " is working correctly!"}, f.twilio.sent)

	f.twilio.err = errors.New("account suspended")
	_, err = f.svc.TestNumber(ctx, f.number.ID, "+15557654321")
	require.True(t, apperr.Is(err, apperr.CodeValidation))

	n, err := f.store.GetPhoneNumber(ctx, f.number.ID)
	require.NoError(t, err)
	require.False(t, n.IsActive)
}
