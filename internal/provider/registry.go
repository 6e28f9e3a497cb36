package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"twoway-sms/internal/config"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
)

// Registry holds the clients whose credentials are configured.
type Registry struct {
	clients map[models.Provider]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[models.Provider]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

// FromConfig registers every provider with complete credentials.
func FromConfig(cfg *config.Config, hc *http.Client) *Registry {
	var clients []Client
	if tw := cfg.Twilio; tw.AccountSID != "" && tw.AuthToken != "" {
		clients = append(clients, NewTwilio(tw.BaseURL, tw.AccountSID, tw.AuthToken, cfg.PublicBaseURL, hc))
	} else {
		logger.Warn().Msg("twilio credentials not configured")
	}
	if sw := cfg.SignalWire; sw.ProjectID != "" && sw.Token != "" && sw.SpaceURL != "" {
		clients = append(clients, NewSignalWire(sw.SpaceURL, sw.ProjectID, sw.Token, cfg.PublicBaseURL, hc))
	} else {
		logger.Warn().Msg("signalwire credentials not configured")
	}
	return NewRegistry(clients...)
}

// Get returns the client for p or an error wrapping ErrNotConfigured.
func (r *Registry) Get(p models.Provider) (Client, error) {
	if c, ok := r.clients[p]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%s %w", DisplayName(p), ErrNotConfigured)
}

// Available groups purchasable numbers by provider.
type Available struct {
	Twilio     []NumberInfo `json:"twilio"`
	SignalWire []NumberInfo `json:"signalwire"`
}

// AvailableNumbers queries one provider, or both concurrently when only is
// empty. A provider that fails or is not configured contributes an empty list.
func (r *Registry) AvailableNumbers(ctx context.Context, areaCode string, only models.Provider) *Available {
	targets := []models.Provider{models.ProviderTwilio, models.ProviderSignalWire}
	if only.Valid() {
		targets = []models.Provider{only}
	}

	var (
		mu  sync.Mutex
		res = map[models.Provider][]NumberInfo{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range targets {
		p := p
		g.Go(func() error {
			numbers := []NumberInfo{}
			c, err := r.Get(p)
			if err == nil {
				numbers, err = c.AvailableNumbers(gctx, areaCode)
			}
			if err != nil {
				logger.Error().Err(err).Str("provider", p.String()).Msg("fetch available numbers")
				numbers = []NumberInfo{}
			}
			mu.Lock()
			res[p] = numbers
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := &Available{Twilio: []NumberInfo{}, SignalWire: []NumberInfo{}}
	if n, ok := res[models.ProviderTwilio]; ok {
		out.Twilio = n
	}
	if n, ok := res[models.ProviderSignalWire]; ok {
		out.SignalWire = n
	}
	return out
}
