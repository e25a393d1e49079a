package http

import (
	"context"
	"log/slog"

	"github.com/example/practice-scheduler/internal/application"
	"github.com/example/practice-scheduler/internal/logging"
)

type contextKey string

const (
	principalContextKey      contextKey = "principal"
	organizationIDContextKey contextKey = "organization_id"
	resourceIDContextKey     contextKey = "resource_id"
)

// ContextWithPrincipal returns a derived context containing the acting principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the acting principal from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

// ContextWithOrganizationID injects the tenant resolved by the middleware.
func ContextWithOrganizationID(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationIDContextKey, organizationID)
}

// OrganizationIDFromContext extracts the tenant identifier.
func OrganizationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(organizationIDContextKey).(string)
	return id, ok
}

// ContextWithResourceID injects the identifier resolved from the request path.
func ContextWithResourceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, resourceIDContextKey, id)
}

// ResourceIDFromContext extracts an identifier previously associated with the context.
func ResourceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(resourceIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches a request-scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts a request-scoped logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
