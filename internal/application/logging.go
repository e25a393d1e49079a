package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/practice-scheduler/internal/logging"
	"github.com/example/practice-scheduler/internal/rules"
	"github.com/example/practice-scheduler/internal/statemachine"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrPlannerUnavailable):
		return "planner_unavailable"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var tErr *statemachine.InvalidTransitionError
	if errors.As(err, &tErr) {
		return "invalid_transition"
	}
	var rErr *rules.ReviewRequiredError
	if errors.As(err, &rErr) {
		return "rule_review_required"
	}

	return "unexpected"
}
