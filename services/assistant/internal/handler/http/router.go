package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/shopassist/pkg/health"
	"github.com/utafrali/shopassist/pkg/middleware"
	"github.com/utafrali/shopassist/services/assistant/internal/session"
)

const serviceName = "assistant"

// RouterConfig tunes the service API.
type RouterConfig struct {
	RequestTimeout time.Duration
	Heartbeat      time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

// NewRouter creates a chi router with all assistant routes registered.
func NewRouter(
	sessions *session.Manager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.AllowedOrigins
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cors))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	h := NewSessionHandler(sessions, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/prompts", h.Prompts)

		r.Route("/sessions", func(r chi.Router) {
			r.With(chimw.Timeout(cfg.RequestTimeout)).Post("/", h.CreateSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				if cfg.RateLimitRPS > 0 {
					r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, sessionKey, logger))
				}

				// The event stream outlives the request timeout.
				r.Get("/events", h.Events(cfg.Heartbeat))

				r.Group(func(r chi.Router) {
					r.Use(chimw.Timeout(cfg.RequestTimeout))
					r.Use(chimw.Compress(5))

					r.Get("/", h.GetSession)
					r.Delete("/", h.DeleteSession)

					r.Post("/search", h.Search)
					r.Post("/search/image", h.SearchImage)
					r.Delete("/search", h.ClearSearch)

					r.Post("/cart/{productId}/toggle", h.ToggleCart)
					r.Post("/wishlist/{productId}/toggle", h.ToggleWishlist)

					r.Put("/detail/{productId}", h.OpenDetail)
					r.Delete("/detail", h.CloseDetail)

					r.Post("/login", h.Login)
					r.Post("/signup", h.Signup)
					r.Post("/logout", h.Logout)

					r.Post("/checkout", h.Checkout)
				})
			})
		})
	})

	return r
}

// sessionKey charges requests to the session in the path.
func sessionKey(r *http.Request) string {
	return chi.URLParam(r, "sessionId")
}
