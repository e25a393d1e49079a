package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/practice-scheduler/internal/application"
	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/rules"
	"github.com/example/practice-scheduler/internal/statemachine"
)

var (
	errBadRequestBody       = errors.New("the request body could not be parsed")
	errInvalidResourceID    = errors.New("the resource id in the path is invalid")
	errMissingOrganization  = errors.New("the X-Organization-ID header is required")
	errUnsupportedOperation = errors.New("the requested session operation is unknown")
)

// Stable error codes clients can branch on.
const (
	codeValidation         = "VALIDATION"
	codeNotFound           = "NOT_FOUND"
	codeConflict           = "CONFLICT"
	codeInvalidTransition  = "INVALID_TRANSITION"
	codeReviewRequired     = "RULE_REVIEW_REQUIRED"
	codePlannerUnavailable = "PLANNER_UNAVAILABLE"
	codeInternal           = "INTERNAL"
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps the application error taxonomy onto HTTP statuses
// and stable error codes.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: codeValidation,
			Message:   "the request is invalid",
			Errors:    vErr.FieldErrors,
		})
		return
	}

	var tErr *statemachine.InvalidTransitionError
	if errors.As(err, &tErr) {
		allowed := make([]string, 0, len(tErr.Allowed))
		for _, status := range tErr.Allowed {
			allowed = append(allowed, string(status))
		}
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: codeInvalidTransition,
			Message:   tErr.Error(),
			Transition: &transitionDetail{
				From:      string(tErr.From),
				Requested: string(tErr.Requested),
				Allowed:   allowed,
			},
		})
		return
	}

	var rErr *rules.ReviewRequiredError
	if errors.As(err, &rErr) {
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: codeReviewRequired,
			Message:   rErr.Error(),
			RuleIDs:   rErr.RuleIDs,
		})
		return
	}

	switch {
	case errors.Is(err, application.ErrConflict):
		payload := errorResponse{
			ErrorCode: codeConflict,
			Message:   "the slot is no longer available",
		}
		var conflict *persistence.SlotConflictError
		if errors.As(err, &conflict) {
			payload.Conflict = &conflictDetail{
				Resource:  conflict.Resource,
				HoldID:    conflict.HoldID,
				SessionID: conflict.SessionID,
			}
		} else {
			payload.Message = err.Error()
		}
		r.writeJSON(ctx, w, http.StatusConflict, payload)
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: codeNotFound,
			Message:   "the requested resource was not found",
		})
	case errors.Is(err, application.ErrPlannerUnavailable):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: codePlannerUnavailable,
			Message:   "the schedule planner is temporarily unavailable; try again later",
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			ErrorCode: codeInternal,
			Message:   "an internal error occurred",
		})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode  string            `json:"error_code,omitempty"`
	Message    string            `json:"message"`
	Errors     map[string]string `json:"errors,omitempty"`
	Conflict   *conflictDetail   `json:"conflict,omitempty"`
	Transition *transitionDetail `json:"transition,omitempty"`
	RuleIDs    []string          `json:"rule_ids,omitempty"`
}

type conflictDetail struct {
	Resource  string `json:"resource"`
	HoldID    string `json:"hold_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type transitionDetail struct {
	From      string   `json:"from"`
	Requested string   `json:"requested"`
	Allowed   []string `json:"allowed"`
}
