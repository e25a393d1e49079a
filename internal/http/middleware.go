package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/practice-scheduler/internal/application"
)

// RequireOrganization resolves the tenant from the X-Organization-ID header
// and the acting user from X-User-ID. Authentication itself lives in front
// of this service; the core trusts the headers it is handed and only
// insists that a tenant is named.
func RequireOrganization(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			organizationID := strings.TrimSpace(r.Header.Get("X-Organization-ID"))
			if organizationID == "" {
				responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
				return
			}

			ctx := ContextWithOrganizationID(r.Context(), organizationID)
			if userID := strings.TrimSpace(r.Header.Get("X-User-ID")); userID != "" {
				ctx = ContextWithPrincipal(ctx, application.Principal{UserID: userID})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a request-scoped logger and records timing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "duration", time.Since(start))
		})
	}
}
