// Package provider talks to the telephony vendors (Twilio, SignalWire) and
// decides which of them carries a given message.
package provider

import (
	"context"
	"errors"
	"fmt"

	"twoway-sms/internal/models"
)

// ErrNotConfigured is returned for a provider whose credentials are absent.
var ErrNotConfigured = errors.New("credentials not configured")

type Capabilities struct {
	SMS   bool `json:"sms"`
	Voice bool `json:"voice"`
}

// NumberInfo describes a number offered for purchase or owned on the
// provider account.
type NumberInfo struct {
	SID          string       `json:"sid,omitempty"`
	PhoneNumber  string       `json:"phone_number"`
	FriendlyName string       `json:"friendly_name"`
	Locality     string       `json:"locality,omitempty"`
	Region       string       `json:"region,omitempty"`
	Capabilities Capabilities `json:"capabilities"`

	alt string
}

// Matches reports whether number is how the provider lists this number.
func (n *NumberInfo) Matches(number string) bool {
	return number != "" && (n.PhoneNumber == number || n.alt == number)
}

// Client is the capability set every provider implements.
type Client interface {
	Name() models.Provider
	// SendSMS returns the provider message SID.
	SendSMS(ctx context.Context, from, to, body string) (string, error)
	// MakeCall starts an outbound call that fetches its instructions from
	// lamlURL, returning the provider call SID.
	MakeCall(ctx context.Context, from, to, lamlURL string) (string, error)
	LookupNumber(ctx context.Context, sid string) (*NumberInfo, error)
	AvailableNumbers(ctx context.Context, areaCode string) ([]NumberInfo, error)
	PurchaseNumber(ctx context.Context, number string) (*NumberInfo, error)
}

// APIError is a non-2xx answer from a provider REST API.
type APIError struct {
	Provider models.Provider
	Status   int
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s http %d", DisplayName(e.Provider), e.Status)
}

// DisplayName is the vendor name used in user-facing messages.
func DisplayName(p models.Provider) string {
	switch p {
	case models.ProviderTwilio:
		return "Twilio"
	case models.ProviderSignalWire:
		return "SignalWire"
	default:
		return string(p)
	}
}

// Select picks the provider for one send: an explicit override wins, then
// the user's preference, then the provider that owns the sending number.
// Invalid or empty signals are skipped; with none left the default is used.
func Select(override models.Provider, preferred *models.Provider, number models.Provider) models.Provider {
	if override.Valid() {
		return override
	}
	if preferred != nil && preferred.Valid() {
		return *preferred
	}
	if number.Valid() {
		return number
	}
	return models.DefaultProvider
}
