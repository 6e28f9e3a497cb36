package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"twoway-sms/internal/auth"
	"twoway-sms/internal/config"
	"twoway-sms/internal/credits"
	"twoway-sms/internal/messaging"
	"twoway-sms/internal/provider"
	"twoway-sms/internal/realtime"
	"twoway-sms/internal/store"
)

// Deps is everything the handlers are built from.
type Deps struct {
	Config    *config.Config
	DB        pinger
	Store     store.Store
	Auth      *auth.Service
	Messaging *messaging.Service
	Ledger    *credits.Ledger
	Providers *provider.Registry
	Events    realtime.Broker
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	events := d.Events
	if events == nil {
		events = realtime.Nop{}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoverMiddleware)

	r.Get("/health", HealthHandler(d.DB))
	r.Get("/version", VersionHandler())

	r.Route("/api", func(api chi.Router) {
		loginLimit := NewRateLimiter(cfg.LoginRatePerMinute)
		api.Route("/auth", func(a chi.Router) {
			a.With(loginLimit.Middleware).Post("/login", LoginHandler(cfg, d.Auth))
			a.With(loginLimit.Middleware).Post("/signup", SignupHandler(cfg, d.Auth))
			a.Post("/logout", LogoutHandler(cfg, d.Auth))
		})

		// Fetched by the provider when the callee answers.
		api.Get("/voice/laml", CallLaMLHandler(d.Messaging))
		api.Post("/voice/laml", CallLaMLHandler(d.Messaging))

		api.Route("/webhooks/{provider}", func(wh chi.Router) {
			wh.Use(WebhookMiddleware(cfg))
			wh.Get("/sms", WebhookProbeHandler())
			wh.Post("/sms", InboundSMSHandler(d.Messaging))
			wh.Post("/status", MessageStatusHandler(d.Messaging))
			wh.Post("/voice", InboundVoiceHandler())
			wh.Post("/voice-status", CallStatusHandler(d.Messaging))
			wh.Post("/recording", RecordingHandler(d.Store))
		})

		api.Group(func(u chi.Router) {
			u.Use(RequireUser(d.Auth, cfg.SessionCookie))

			u.Get("/me", MeHandler(d.Store))
			u.Post("/sms/send", SendSMSHandler(d.Messaging))
			u.Post("/sms/bulk", BulkSMSHandler(d.Messaging))
			u.Post("/voice/call", CallHandler(d.Messaging))
			u.Get("/calls", CallsHandler(d.Store))

			u.Get("/conversations", ConversationsHandler(d.Messaging))
			u.Get("/conversations/{id}/messages", MessagesHandler(d.Messaging))
			u.Post("/conversations/{id}/read", MarkReadHandler(d.Messaging))
			u.Get("/conversations/{id}/events", ConversationEventsHandler(d.Store, events))

			u.Route("/admin", func(adm chi.Router) {
				adm.Use(RequireAdmin)

				adm.Get("/users", ListUsersHandler(d.Store))
				adm.Post("/users", CreateUserHandler(d.Auth))
				adm.Get("/users/{id}", GetUserHandler(d.Store))
				adm.Patch("/users/{id}", UpdateUserHandler(d.Store))

				adm.Get("/phone-numbers", ListPhoneNumbersHandler(d.Store))
				adm.Post("/phone-numbers", AddPhoneNumberHandler(d.Store))
				adm.Post("/phone-numbers/verify", VerifyPhoneNumberHandler(d.Providers))
				adm.Get("/phone-numbers/available", AvailableNumbersHandler(d.Providers))
				adm.Post("/phone-numbers/purchase", PurchaseNumberHandler(d.Providers, d.Store))
				adm.Post("/phone-numbers/{id}/assign", AssignPhoneNumberHandler(d.Store))
				adm.Post("/phone-numbers/{id}/unassign", UnassignPhoneNumberHandler(d.Store))
				adm.Post("/phone-numbers/{id}/test", SendTestSMSHandler(d.Messaging))

				adm.Post("/credits/{userID}", AdjustCreditsHandler(d.Store, d.Ledger))
				adm.Get("/calls", AdminCallsHandler(d.Store))
				adm.Get("/analytics", AnalyticsHandler(d.Store))
			})
		})
	})

	return r
}
