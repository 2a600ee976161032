// Package admin exposes operator endpoints: registry inspection and reload.
// All routes sit behind a JWT bearer guard.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"inkdrop/internal/registry"
	domainerrors "inkdrop/pkg/domain-errors"
	"inkdrop/pkg/platform/httputil"
)

// Handler serves the /admin routes.
type Handler struct {
	resolver *registry.Resolver
	verifier *TokenVerifier
	logger   *slog.Logger
}

func NewHandler(resolver *registry.Resolver, verifier *TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		verifier: verifier,
		logger:   logger,
	}
}

// Register mounts the admin routes behind the bearer guard.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireOperator)
		r.Get("/registry", h.registryInfo)
		r.Post("/registry/reload", h.reloadRegistry)
	})
}

func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			httputil.WriteError(w, domainerrors.New(domainerrors.CodeUnauthorized, "missing bearer token"))
			return
		}
		subject, err := h.verifier.Verify(raw)
		if err != nil {
			h.logger.WarnContext(r.Context(), "admin token rejected", "remote", r.RemoteAddr, "error", err)
			httputil.WriteError(w, err)
			return
		}
		r.Header.Set("X-Operator", subject)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) registryInfo(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"version": h.resolver.Version(),
	})
}

// reloadRegistry re-reads the mapping document and atomically swaps it in.
// A document that fails validation leaves the current mapping untouched.
func (h *Handler) reloadRegistry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.resolver.Reload(ctx); err != nil {
		h.logger.ErrorContext(ctx, "registry reload failed",
			"operator", r.Header.Get("X-Operator"),
			"error", err,
		)
		httputil.WriteError(w, domainerrors.Wrap(domainerrors.CodeBadRequest, "registry document rejected", err))
		return
	}

	h.logger.InfoContext(ctx, "registry reloaded",
		"operator", r.Header.Get("X-Operator"),
		"version", h.resolver.Version(),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "reloaded",
		"version": h.resolver.Version(),
	})
}
