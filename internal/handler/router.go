package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/metrics"
)

// DatabaseChecker is the health-check surface of a database backend.
type DatabaseChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig contains the dependencies of the HTTP router.
type RouterConfig struct {
	CatalogHandler *CatalogHandler
	LendingHandler *LendingHandler
	MemberHandler  *MemberHandler
	Database       DatabaseChecker
	Metrics        *metrics.Metrics
	MaxBodySize    int64
	Logger         zerolog.Logger
}

// NewRouter assembles the chi mux with all middleware and routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(Instrument(cfg.Metrics))
	r.Use(MaxBodySize(cfg.MaxBodySize))

	r.Get("/health", handleHealth(cfg.Database))

	cfg.CatalogHandler.RegisterRoutes(r)
	cfg.LendingHandler.RegisterRoutes(r)
	cfg.MemberHandler.RegisterRoutes(r)

	return r
}

// handleHealth reports liveness and database reachability.
func handleHealth(db DatabaseChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Health(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  "database unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
