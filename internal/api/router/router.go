package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/booking-assistant/internal/http/middleware"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	// Webhook receives gateway deliveries on /webhooks/whatsapp/{instance}.
	Webhook http.Handler
	// Dashboard streams booking events on /ws/dashboard.
	Dashboard      http.Handler
	DashboardToken string
	MetricsHandler http.Handler
	Health         *HealthHandler

	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler()
	}
	r.Get("/health", health.ServeHTTP)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Group(func(hooks chi.Router) {
			hooks.Use(httpmiddleware.RateLimit(httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)))
			hooks.Post("/webhooks/whatsapp", cfg.Webhook.ServeHTTP)
			hooks.Post("/webhooks/whatsapp/{instance}", cfg.Webhook.ServeHTTP)
		})
	}

	if cfg.Dashboard != nil {
		r.With(requireDashboardToken(cfg.DashboardToken)).Get("/ws/dashboard", cfg.Dashboard.ServeHTTP)
	}

	return r
}
