package provider

import (
	"net/http"

	"twoway-sms/internal/models"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

type Twilio struct {
	*restClient
}

var _ Client = (*Twilio)(nil)

// NewTwilio builds a client for the account. webhookURL is the public base
// URL the provider uses to call us back. hc may be nil.
func NewTwilio(baseURL, accountSID, authToken, webhookURL string, hc *http.Client) *Twilio {
	if baseURL == "" {
		baseURL = DefaultTwilioBaseURL
	}
	return &Twilio{restClient: newRESTClient(models.ProviderTwilio, baseURL, accountSID, authToken, webhookURL, hc)}
}
