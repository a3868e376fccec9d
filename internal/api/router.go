package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/freshness/internal/api/middleware"
	"github.com/phrazzld/freshness/internal/platform/metrics"
)

// NewRouter wires the operational endpoints.
func NewRouter(h *OpsHandler, m *metrics.Metrics, l *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(l))

	r.Get("/healthz", h.Healthz)
	r.Get("/queue", h.Queue)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	return r
}
