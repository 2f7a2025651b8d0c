package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sushilparajuli/note-app-fullstack/pkg/health"
	"github.com/sushilparajuli/note-app-fullstack/pkg/middleware"
)

// RouterConfig carries the dependencies the router wires together.
type RouterConfig struct {
	AuthHandler   *AuthHandler
	HealthHandler *health.Handler
	Validator     middleware.TokenValidator
	Logger        *slog.Logger
	CORS          CORSConfig
}

// NewRouter builds the HTTP routing table for the auth service.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing("auth"))
	r.Use(middleware.PrometheusMetrics("auth"))
	r.Use(CORS(cfg.CORS))

	r.Get("/health/live", cfg.HealthHandler.LivenessHandler())
	r.Get("/health/ready", cfg.HealthHandler.ReadinessHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", cfg.AuthHandler.Register)
		r.Post("/login", cfg.AuthHandler.Login)
		r.Post("/refresh-token", cfg.AuthHandler.RefreshToken)
		r.Post("/logout", cfg.AuthHandler.Logout)
		r.Post("/validate", cfg.AuthHandler.Validate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Validator))
			r.Get("/profile", cfg.AuthHandler.Profile)
			r.Delete("/profile", cfg.AuthHandler.DeleteAccount)
		})
	})

	return r
}
