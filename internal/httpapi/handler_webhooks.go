package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"twoway-sms/internal/config"
	"twoway-sms/internal/laml"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/messaging"
	"twoway-sms/internal/models"
	"twoway-sms/internal/provider"
)

type providerKey struct{}

func webhookProvider(ctx context.Context) models.Provider {
	p, _ := ctx.Value(providerKey{}).(models.Provider)
	return p
}

// WebhookMiddleware resolves the {provider} path segment, parses the form
// body and, when enabled, checks the request signature against that
// provider's auth token.
func WebhookMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := models.ParseProvider(chi.URLParam(r, "provider"))
			if err != nil {
				http.NotFound(w, r)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			if err := r.ParseForm(); err != nil {
				// providers always get the empty acknowledgement
				logger.Warn().Err(err).Str("provider", p.String()).Str("path", r.URL.Path).Msg("unreadable webhook body")
				laml.Write(w, laml.Empty())
				return
			}

			if cfg.ValidateWebhookSignatures && r.Method == http.MethodPost {
				sig := r.Header.Get("X-Twilio-Signature")
				if sig == "" {
					sig = r.Header.Get("X-SignalWire-Signature")
				}
				fullURL := strings.TrimRight(cfg.PublicBaseURL, "/") + r.URL.RequestURI()
				if sig == "" || !provider.ValidateSignature(webhookToken(cfg, p), fullURL, r.PostForm, sig) {
					logger.Warn().Str("provider", p.String()).Str("path", r.URL.Path).Msg("webhook signature rejected")
					writeJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid request"})
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), providerKey{}, p)))
		})
	}
}

func webhookToken(cfg *config.Config, p models.Provider) string {
	if p == models.ProviderSignalWire {
		return cfg.SignalWire.Token
	}
	return cfg.Twilio.AuthToken
}

// InboundSMSHandler always acknowledges with an empty Response so the
// provider does not retry; failures are only logged.
func InboundSMSHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := webhookProvider(r.Context())
		in := messaging.InboundSMS{
			From:        r.PostForm.Get("From"),
			To:          r.PostForm.Get("To"),
			Body:        r.PostForm.Get("Body"),
			ProviderSID: r.PostForm.Get("MessageSid"),
		}
		if in.ProviderSID == "" {
			in.ProviderSID = r.PostForm.Get("SmsSid")
		}
		logger.Debug().Str("provider", p.String()).Str("from", in.From).Str("to", in.To).
			Str("provider_sid", in.ProviderSID).Msg("inbound sms webhook")

		if err := svc.Inbound(r.Context(), p, in); err != nil {
			logger.Error().Err(err).Str("provider", p.String()).Str("provider_sid", in.ProviderSID).Msg("inbound sms")
		}
		laml.Write(w, laml.Empty())
	}
}

// WebhookProbeHandler answers the GET a provider console sends when a
// webhook URL is saved.
func WebhookProbeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	}
}

func MessageStatusHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := r.PostForm
		errMsg := f.Get("ErrorMessage")
		if errMsg == "" && f.Get("ErrorCode") != "" {
			errMsg = "Provider error " + f.Get("ErrorCode")
		}
		if err := svc.StatusCallback(r.Context(), f.Get("MessageSid"), f.Get("MessageStatus"), errMsg); err != nil {
			logger.Error().Err(err).Str("provider_sid", f.Get("MessageSid")).Msg("message status callback")
		}
		laml.Write(w, laml.Empty())
	}
}

func CallStatusHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := r.PostForm
		duration, _ := strconv.Atoi(f.Get("CallDuration"))
		if err := svc.CallStatusCallback(r.Context(), f.Get("CallSid"), f.Get("CallStatus"), duration); err != nil {
			logger.Error().Err(err).Str("provider_sid", f.Get("CallSid")).Msg("call status callback")
		}
		laml.Write(w, laml.Empty())
	}
}

// InboundVoiceHandler answers calls to our numbers with an empty document,
// which hangs up.
func InboundVoiceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Info().Str("provider", webhookProvider(r.Context()).String()).
			Str("from", r.PostForm.Get("From")).Str("to", r.PostForm.Get("To")).Msg("inbound call")
		laml.Write(w, laml.Empty())
	}
}
