package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Metrics exposes GET /metrics and records request metrics.
	Metrics bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		Metrics:        true,
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /jobs/{id}/candidates/{index}", h.GetCandidate)
	mux.HandleFunc("GET /jobs/{id}/thumbnail", h.GetThumbnail)
	mux.HandleFunc("POST /jobs/{id}/select", h.SelectCandidate)
	mux.HandleFunc("POST /jobs/{id}/manual", h.AttachManual)
	mux.HandleFunc("DELETE /jobs/{id}", h.DiscardJob)
	mux.HandleFunc("POST /cleanup", h.Cleanup)

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	}
	if cfg.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
		middlewares = append(middlewares, MetricsMiddleware())
	}

	// Apply middleware chain
	return ChainMiddleware(middlewares...)(mux)
}
