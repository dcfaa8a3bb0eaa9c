package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fuomag9/targetwatch/internal/config"
	"github.com/fuomag9/targetwatch/internal/jobs"
	"github.com/fuomag9/targetwatch/internal/monitor"
	"github.com/fuomag9/targetwatch/internal/websocket"
)

// Deps are the collaborators the router exposes over HTTP.
type Deps struct {
	Config      *config.Config
	Service     *monitor.Service
	Executor    *monitor.Executor
	Summarizer  *jobs.Summarizer
	Hub         *websocket.Hub
	RateLimiter *RateLimiter
	Logger      *zap.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(d Deps) http.Handler {
	cfg, svc, log := d.Config, d.Service, d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limiter := d.RateLimiter
	if limiter == nil {
		limiter = NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Use(AuthMiddleware(cfg.JWTSecret))

			r.Get("/targets", HandleListTargets(svc, log))
			r.Post("/targets", HandleCreateTarget(svc, log))
			r.Get("/targets/{id}", HandleGetTarget(svc, log))
			r.Delete("/targets/{id}", HandleDeleteTarget(svc, log))
			r.Put("/targets/{id}/interval", HandleUpdateInterval(svc, log))
			r.Post("/targets/{id}/resume", HandleResumeTarget(svc, log))
			r.Get("/targets/{id}/uptime", HandleGetUptime(svc, log))
			r.Get("/targets/{id}/outcomes", HandleGetOutcomes(svc, log))
		})

		// Badge endpoints (no auth required)
		r.Get("/badge/{id}/uptime", HandleUptimeBadge(svc, log))
		r.Get("/badge/{id}/status", HandleStatusBadge(svc, log))
	})

	r.Get("/metrics", HandlePrometheusMetrics(d.Summarizer, d.Executor, log))

	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
