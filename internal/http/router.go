// Package http assembles the service's HTTP surface: webhook intake, admin
// routes, health, and metrics.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inkdrop/pkg/platform/httputil"
	"inkdrop/pkg/platform/middleware/requestid"
)

// Registrar mounts a feature's routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports dependency liveness.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) error
}

// Check adapts a named probe function to the HealthChecker interface.
type Check struct {
	name  string
	probe func(ctx context.Context) error
}

func NewCheck(name string, probe func(ctx context.Context) error) Check {
	return Check{name: name, probe: probe}
}

func (c Check) Name() string                     { return c.name }
func (c Check) Health(ctx context.Context) error { return c.probe(ctx) }

// NewRouter builds the service router. Handlers register their own routes;
// health checkers feed /healthz.
func NewRouter(checkers []HealthChecker, handlers ...Registrar) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)

	r.Get("/healthz", healthHandler(checkers))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func healthHandler(checkers []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		checks := make(map[string]string, len(checkers))
		for _, c := range checkers {
			if err := c.Health(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[c.Name()] = err.Error()
				continue
			}
			checks[c.Name()] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": http.StatusText(status),
			"checks": checks,
		})
	}
}
