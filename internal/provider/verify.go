package provider

import (
	"context"
	"errors"

	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
)

type Verification struct {
	Verified    bool            `json:"verified"`
	PhoneNumber string          `json:"phone_number"`
	Provider    models.Provider `json:"provider"`
	Details     *NumberDetails  `json:"details"`
	Error       string          `json:"error,omitempty"`
}

type NumberDetails struct {
	FriendlyName string       `json:"friendly_name"`
	Capabilities Capabilities `json:"capabilities"`
}

// VerifyNumber checks that providerSID on the provider account is number.
// Lookup failures give an unverified result, never an error.
func (r *Registry) VerifyNumber(ctx context.Context, p models.Provider, number, providerSID string) *Verification {
	v := &Verification{PhoneNumber: number, Provider: p}

	c, err := r.Get(p)
	if err != nil {
		v.Error = err.Error()
		return v
	}

	info, err := c.LookupNumber(ctx, providerSID)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			logger.Error().Err(err).Str("provider", p.String()).Msg("verify phone number")
		}
		return v
	}
	if !info.Matches(number) {
		return v
	}

	v.Verified = true
	v.Details = &NumberDetails{FriendlyName: info.FriendlyName, Capabilities: info.Capabilities}
	if v.Details.FriendlyName == "" {
		v.Details.FriendlyName = number
	}
	return v
}
