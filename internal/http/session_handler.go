package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/practice-scheduler/internal/application"
)

type sessionService interface {
	GetSession(ctx context.Context, organizationID, sessionID string) (application.Session, error)
	ListSessions(ctx context.Context, organizationID string, query application.SessionListQuery) ([]application.Session, error)
	Approve(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error)
	Confirm(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error)
	CheckIn(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error)
	Start(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error)
	Complete(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error)
	MarkNoShow(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error)
	Cancel(ctx context.Context, organizationID string, params application.CancelSessionParams) (application.Session, error)
}

type SessionHandler struct {
	service   sessionService
	responder responder
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, responder: newResponder(logger)}
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	sessionID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(sessionID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	session, err := h.service.GetSession(r.Context(), organizationID, sessionID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionDTO(session))
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	values := r.URL.Query()
	query := application.SessionListQuery{
		ScheduleID:      strings.TrimSpace(values.Get("schedule_id")),
		StaffID:         strings.TrimSpace(values.Get("staff_id")),
		PatientID:       strings.TrimSpace(values.Get("patient_id")),
		DateFrom:        strings.TrimSpace(values.Get("date_from")),
		DateTo:          strings.TrimSpace(values.Get("date_to")),
		ExcludeTerminal: values.Get("exclude_terminal") == "true",
	}

	sessions, err := h.service.ListSessions(r.Context(), organizationID, query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: toSessionDTOs(sessions)})
}

// Act dispatches a lifecycle operation named in the path, such as
// POST /sessions/{id}/confirm.
func (h *SessionHandler) Act(w http.ResponseWriter, r *http.Request, action string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	sessionID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(sessionID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var (
		session application.Session
		err     error
	)
	switch action {
	case "approve":
		session, err = h.service.Approve(r.Context(), organizationID, sessionID, principal)
	case "confirm":
		session, err = h.service.Confirm(r.Context(), organizationID, sessionID, principal)
	case "check-in":
		session, err = h.service.CheckIn(r.Context(), organizationID, sessionID, principal)
	case "start":
		session, err = h.service.Start(r.Context(), organizationID, sessionID, principal)
	case "complete":
		session, err = h.service.Complete(r.Context(), organizationID, sessionID, principal)
	case "no-show":
		session, err = h.service.MarkNoShow(r.Context(), organizationID, sessionID, principal)
	case "cancel":
		var req cancelSessionRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil && decodeErr != io.EOF {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		session, err = h.service.Cancel(r.Context(), organizationID, application.CancelSessionParams{
			Principal: principal,
			SessionID: sessionID,
			Reason:    strings.TrimSpace(req.Reason),
		})
	default:
		h.responder.writeError(r.Context(), w, http.StatusNotFound, errUnsupportedOperation)
		return
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionDTO(session))
}

type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

type listSessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}
