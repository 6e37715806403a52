package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/cashdesk/internal/identity"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/cashdesk/internal/middleware"
	"github.com/cassiomorais/cashdesk/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const requestTimeout = 60 * time.Second

type RouterDeps struct {
	Settings  *service.SettingsService
	Drafts    *service.DraftService
	Verifier  *service.VerificationService
	Submitter *service.SubmitService
	Poller    *service.StatusPoller

	Identity identity.Chain
	// Issuer mints a device identity for callers the chain cannot resolve.
	Issuer *identity.PersistedProvider

	Health   map[string]Pinger
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	Server   config.ServerConfig
	QR       config.QRConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(customMW.Logger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Server.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "X-Locale",
			identity.HeaderInitData, identity.HeaderUserID, identity.HeaderDeviceID,
		},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Health)
	settingsH := NewSettingsController(deps.Settings)
	flowH := NewFlowController(deps.Drafts, deps.Verifier, deps.Submitter, deps.Poller)
	linksH := NewLinksController(deps.Submitter, deps.QR)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	limit := customMW.RateLimit(deps.Server.RateLimit, deps.Server.RateLimitWindow)
	if deps.Server.RateLimit <= 0 {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.Locale())
		r.Use(customMW.Identity(deps.Identity, deps.Issuer))

		// The status stream is long-lived and is bounded by the poller instead.
		r.Get("/flows/{flow}/status/stream", flowH.StatusStream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))

			r.Get("/settings", settingsH.Settings)
			r.Get("/leaderboard", settingsH.Leaderboard)
			r.Get("/history", settingsH.History)

			r.Get("/flows/deposit/links", linksH.DepositLinks)

			r.Get("/flows/{flow}", flowH.Get)
			r.Patch("/flows/{flow}", flowH.Update)
			r.Delete("/flows/{flow}", flowH.Abandon)
			r.Post("/flows/{flow}/steps/{step}", flowH.Advance)
			r.Get("/flows/{flow}/status", flowH.Status)

			r.With(limit).Post("/flows/{flow}/verify", flowH.Verify)
			r.With(limit).Post("/flows/{flow}/submit", flowH.Submit)
		})
	})

	return r
}
