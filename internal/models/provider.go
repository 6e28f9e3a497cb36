package models

import (
	"fmt"
	"strings"
)

// Provider identifies a telephony vendor.
type Provider string

const (
	ProviderTwilio     Provider = "twilio"
	ProviderSignalWire Provider = "signalwire"
)

// DefaultProvider is used when nothing else selects one.
const DefaultProvider = ProviderTwilio

func (p Provider) Valid() bool {
	return p == ProviderTwilio || p == ProviderSignalWire
}

func (p Provider) String() string {
	return string(p)
}

// ParseProvider accepts the lower-case identifiers used in the API and storage.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid provider %q", s)
	}
	return p, nil
}
