package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"twoway-sms/internal/models"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	sw := models.ProviderSignalWire
	tw := models.ProviderTwilio
	bogus := models.Provider("nexmo")

	tests := []struct {
		name      string
		override  models.Provider
		preferred *models.Provider
		number    models.Provider
		want      models.Provider
	}{
		{name: "override wins", override: sw, preferred: &tw, number: tw, want: sw},
		{name: "user preference before number", preferred: &sw, number: tw, want: sw},
		{name: "number provider", number: sw, want: sw},
		{name: "nothing set", want: models.ProviderTwilio},
		{name: "invalid signals skipped", override: bogus, preferred: &bogus, number: sw, want: sw},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Select(tc.override, tc.preferred, tc.number))
		})
	}
}

func TestTwilioSendSMS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "AC123", user)
		require.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "+15550001111", r.PostForm.Get("From"))
		require.Equal(t, "+15557654321", r.PostForm.Get("To"))
		require.Equal(t, "hello", r.PostForm.Get("Body"))
		require.Equal(t, "https://sms.example.com/api/webhooks/twilio/status", r.PostForm.Get("StatusCallback"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewTwilio(srv.URL, "AC123", "secret", "https://sms.example.com/", nil)
	sid, err := c.SendSMS(context.Background(), "+15550001111", "+15557654321", "hello")
	require.NoError(t, err)
	require.Equal(t, "SM42", sid)
}

func TestProviderErrorMessageSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer srv.Close()

	c := NewTwilio(srv.URL, "AC123", "secret", "https://sms.example.com", nil)
	_, err := c.SendSMS(context.Background(), "+15550001111", "bad", "hello")
	require.EqualError(t, err, "The 'To' number is not a valid phone number.")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 21211, apiErr.Code)
}

func TestSignalWireUsesLaMLPaths(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/laml/2010-04-01/Accounts/proj/AvailablePhoneNumbers/US/Local.json":
			require.Equal(t, "415", r.URL.Query().Get("AreaCode"))
			_, _ = w.Write([]byte(`{"available_phone_numbers":[{"phone_number":"+14155550100","friendly_name":"(415) 555-0100","capabilities":{"SMS":true,"voice":true}}]}`))
		case "/api/relay/rest/phone_numbers/pn-1":
			_, _ = w.Write([]byte(`{"id":"pn-1","name":"Main","e164":"+14155550100","capabilities":["sms","voice"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewSignalWire(srv.URL, "proj", "tok", "https://sms.example.com", nil)

	numbers, err := c.AvailableNumbers(context.Background(), "415")
	require.NoError(t, err)
	require.Len(t, numbers, 1)
	require.Equal(t, "+14155550100", numbers[0].PhoneNumber)
	require.True(t, numbers[0].Capabilities.SMS)

	info, err := c.LookupNumber(context.Background(), "pn-1")
	require.NoError(t, err)
	require.True(t, info.Matches("+14155550100"))
	require.True(t, info.Capabilities.Voice)
}

func TestRegistryNotConfigured(t *testing.T) {
	t.Parallel()

	r := NewRegistry(NewTwilio("http://127.0.0.1:0", "AC1", "tok", "", nil))

	_, err := r.Get(models.ProviderSignalWire)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.EqualError(t, err, "SignalWire credentials not configured")

	c, err := r.Get(models.ProviderTwilio)
	require.NoError(t, err)
	require.Equal(t, models.ProviderTwilio, c.Name())
}

func TestRegistryAvailableNumbers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"available_phone_numbers":[{"phone_number":"+12125550100"}]}`))
	}))
	defer srv.Close()

	// signalwire is not configured and must come back empty, not fail the call
	r := NewRegistry(NewTwilio(srv.URL, "AC1", "tok", "", nil))

	got := r.AvailableNumbers(context.Background(), "212", "")
	require.Len(t, got.Twilio, 1)
	require.NotNil(t, got.SignalWire)
	require.Empty(t, got.SignalWire)

	only := r.AvailableNumbers(context.Background(), "", models.ProviderSignalWire)
	require.Empty(t, only.Twilio)
	require.Empty(t, only.SignalWire)
}

func TestVerifyNumber(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC1/IncomingPhoneNumbers/PN1.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"sid":"PN1","phone_number":"+12125550100","friendly_name":"Office","capabilities":{"sms":true,"voice":false}}`))
	}))
	defer srv.Close()

	r := NewRegistry(NewTwilio(srv.URL, "AC1", "tok", "", nil))

	v := r.VerifyNumber(context.Background(), models.ProviderTwilio, "+12125550100", "PN1")
	require.True(t, v.Verified)
	require.Equal(t, "Office", v.Details.FriendlyName)
	require.False(t, v.Details.Capabilities.Voice)

	v = r.VerifyNumber(context.Background(), models.ProviderTwilio, "+19995550100", "PN1")
	require.False(t, v.Verified)
	require.Nil(t, v.Details)

	v = r.VerifyNumber(context.Background(), models.ProviderSignalWire, "+12125550100", "x")
	require.False(t, v.Verified)
	require.Equal(t, "SignalWire credentials not configured", v.Error)
}

func TestValidateSignature(t *testing.T) {
	t.Parallel()

	params := url.Values{
		"From":       {"+15557654321"},
		"To":         {"+15550001111"},
		"Body":       {"hi"},
		"MessageSid": {"SM1"},
	}
	endpoint := "https://sms.example.com/api/webhooks/twilio/sms"
	sig := Signature("token", endpoint, params)

	require.True(t, ValidateSignature("token", endpoint, params, sig))
	require.False(t, ValidateSignature("other", endpoint, params, sig))
	require.False(t, ValidateSignature("token", endpoint+"?x=1", params, sig))

	params.Set("Body", "tampered")
	require.False(t, ValidateSignature("token", endpoint, params, sig))
	require.False(t, ValidateSignature("token", endpoint, params, ""))
}
