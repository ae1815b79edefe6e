// Package httptransport assembles the HTTP surface: middleware chain,
// identity routes, health and metrics endpoints.
package httptransport

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	identityHandler "mariner/internal/identity/handler"
	"mariner/pkg/platform/httputil"
	"mariner/pkg/platform/middleware/logging"
	"mariner/pkg/platform/middleware/metadata"
	"mariner/pkg/platform/middleware/requestid"
	"mariner/pkg/platform/middleware/requesttime"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router wires together.
type Deps struct {
	Identity identityHandler.Service
	Logger   *slog.Logger
	DB       *sql.DB
	Redis    HealthChecker
}

// NewRouter builds the full middleware chain and mounts all routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Recovery(deps.Logger))
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(logging.Logger(deps.Logger))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	identityHandler.New(deps.Identity, deps.Logger).Register(r)

	r.Get("/healthz", handleHealth(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		healthy := true

		if deps.DB != nil {
			if err := deps.DB.PingContext(r.Context()); err != nil {
				status["postgres"] = err.Error()
				healthy = false
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(r.Context()); err != nil {
				status["redis"] = err.Error()
				healthy = false
			}
		}

		if !healthy {
			status["status"] = "degraded"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	}
}
