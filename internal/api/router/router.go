package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/creditsales-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/creditsales-ai-platform/internal/http/middleware"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// WebhookChannel is an inbound messaging channel with Meta-style webhooks.
type WebhookChannel interface {
	HandleVerification(w http.ResponseWriter, r *http.Request)
	HandleWebhook(w http.ResponseWriter, r *http.Request)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	WhatsApp        WebhookChannel
	Admin           *handlers.AdminHandler
	AdminAuthSecret string
	// AdminRateLimit is requests per second per admin subject; 0 disables it.
	AdminRateLimit float64
	MetricsHandler http.Handler
	HealthChecks   map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsApp != nil {
			public.Get("/webhooks/whatsapp", cfg.WhatsApp.HandleVerification)
			public.Post("/webhooks/whatsapp", cfg.WhatsApp.HandleWebhook)
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, "admin", "operator"))
			if cfg.AdminRateLimit > 0 {
				admin.Use(httpmiddleware.RateLimit(cfg.AdminRateLimit, 10, httpmiddleware.AdminSubject))
			}
			admin.Get("/providers", cfg.Admin.ListProviders)
			admin.Post("/providers/{name}/unblock", cfg.Admin.Unblock)
			admin.Get("/sessions/{customer}", cfg.Admin.GetSession)
			admin.Get("/parked", cfg.Admin.ListParked)
			admin.Get("/turns/{jobID}", cfg.Admin.GetTurn)

			// Operational overrides are admin-only.
			admin.Group(func(ops chi.Router) {
				ops.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, "admin"))
				ops.Post("/providers/{name}/force-down", cfg.Admin.ForceDown)
				ops.Delete("/providers/{name}/force-down", cfg.Admin.ForceDown)
				ops.Post("/aggregator/flush", cfg.Admin.FlushAggregator)
			})
		})
	}

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
