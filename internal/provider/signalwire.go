package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"twoway-sms/internal/models"
)

type SignalWire struct {
	*restClient
	spaceURL string
}

var _ Client = (*SignalWire)(nil)

// NewSignalWire builds a client for a SignalWire space. spaceURL may be a
// bare host ("example.signalwire.com") or a full URL.
func NewSignalWire(spaceURL, projectID, token, webhookURL string, hc *http.Client) *SignalWire {
	space := normalizeSpaceURL(spaceURL)
	return &SignalWire{
		restClient: newRESTClient(models.ProviderSignalWire, space+"/api/laml", projectID, token, webhookURL, hc),
		spaceURL:   space,
	}
}

func normalizeSpaceURL(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	return s
}

// LookupNumber uses the relay REST API, which knows numbers by their
// SignalWire id rather than a LaML SID.
func (s *SignalWire) LookupNumber(ctx context.Context, id string) (*NumberInfo, error) {
	var res struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Number       string   `json:"number"`
		E164         string   `json:"e164"`
		Capabilities []string `json:"capabilities"`
	}
	endpoint := s.spaceURL + "/api/relay/rest/phone_numbers/" + url.PathEscape(id)
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &res); err != nil {
		return nil, err
	}

	info := &NumberInfo{SID: res.ID, PhoneNumber: res.Number, FriendlyName: res.Name}
	if info.PhoneNumber == "" {
		info.PhoneNumber = res.E164
	}
	for _, c := range res.Capabilities {
		switch strings.ToLower(c) {
		case "sms":
			info.Capabilities.SMS = true
		case "voice":
			info.Capabilities.Voice = true
		}
	}
	info.alt = res.E164
	return info, nil
}
