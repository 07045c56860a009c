package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ktwhotel/concierge/internal/http/handlers"
	httpmiddleware "github.com/ktwhotel/concierge/internal/http/middleware"
	"github.com/ktwhotel/concierge/pkg/logging"
)

const defaultMessagesPerMinute = 30

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	TenantID           string
	LineWebhook        http.Handler
	Messages           *handlers.MessagesHandler
	AdminSessions      *handlers.AdminSessionsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// MessagesPerMinute caps the synchronous messages endpoint per client IP.
	MessagesPerMinute int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.LineWebhook != nil {
		r.Method(http.MethodPost, "/webhooks/line", cfg.LineWebhook)
	}

	if cfg.Messages != nil {
		perMinute := cfg.MessagesPerMinute
		if perMinute <= 0 {
			perMinute = defaultMessagesPerMinute
		}
		r.Route("/v1/tenants/{tenantID}", func(api chi.Router) {
			if len(cfg.CORSAllowedOrigins) > 0 {
				api.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
			}
			api.Use(httpmiddleware.RateLimit(httpmiddleware.NewRateLimiter(perMinute, 5)))
			api.Post("/messages", cfg.Messages.Post)
			api.Options("/messages", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
	}

	if cfg.AdminSessions != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.TenantID))
			admin.Get("/sessions", cfg.AdminSessions.List)
			admin.Get("/sessions/{userID}", cfg.AdminSessions.Get)
			admin.Delete("/sessions/{userID}", cfg.AdminSessions.Delete)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
