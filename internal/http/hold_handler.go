package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/practice-scheduler/internal/application"
)

type holdService interface {
	CreateHold(ctx context.Context, organizationID string, params application.CreateHoldParams) (application.Hold, error)
	GetHold(ctx context.Context, organizationID, holdID string) (application.Hold, error)
	ExtendHold(ctx context.Context, organizationID, holdID string, additionalMinutes int) (application.Hold, error)
	ReleaseHold(ctx context.Context, organizationID, holdID string) error
	ListActiveHolds(ctx context.Context, organizationID, dateFrom, dateTo string) ([]application.Hold, error)
	CleanupExpired(ctx context.Context) (int, error)
}

type HoldHandler struct {
	service   holdService
	responder responder
}

func NewHoldHandler(service holdService, logger *slog.Logger) *HoldHandler {
	return &HoldHandler{service: service, responder: newResponder(logger)}
}

func (h *HoldHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	hold, err := h.service.CreateHold(r.Context(), organizationID, application.CreateHoldParams{
		Principal:           principal,
		StaffID:             trimPtr(req.StaffID),
		RoomID:              trimPtr(req.RoomID),
		Date:                strings.TrimSpace(req.Date),
		StartTime:           strings.TrimSpace(req.StartTime),
		EndTime:             strings.TrimSpace(req.EndTime),
		HoldDurationMinutes: req.HoldDurationMinutes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toHoldDTO(hold))
}

func (h *HoldHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	holdID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(holdID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	hold, err := h.service.GetHold(r.Context(), organizationID, holdID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toHoldDTO(hold))
}

func (h *HoldHandler) Extend(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	holdID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(holdID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	var req extendHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	hold, err := h.service.ExtendHold(r.Context(), organizationID, holdID, req.AdditionalMinutes)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toHoldDTO(hold))
}

func (h *HoldHandler) Release(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	holdID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(holdID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	if err := h.service.ReleaseHold(r.Context(), organizationID, holdID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *HoldHandler) List(w http.ResponseWriter, r *http.Request) {
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
	holds, err := h.service.ListActiveHolds(
		r.Context(),
		organizationID,
		strings.TrimSpace(values.Get("date_from")),
		strings.TrimSpace(values.Get("date_to")),
	)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listHoldsResponse{Holds: toHoldDTOs(holds)})
}

func (h *HoldHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	removed, err := h.service.CleanupExpired(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, cleanupResponse{Removed: removed})
}

type holdRequest struct {
	StaffID             *string `json:"staff_id"`
	RoomID              *string `json:"room_id"`
	Date                string  `json:"date"`
	StartTime           string  `json:"start_time"`
	EndTime             string  `json:"end_time"`
	HoldDurationMinutes int     `json:"hold_duration_minutes"`
}

type extendHoldRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

type holdDTO struct {
	ID        string  `json:"id"`
	StaffID   *string `json:"staff_id,omitempty"`
	RoomID    *string `json:"room_id,omitempty"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	ExpiresAt string  `json:"expires_at"`
	SessionID *string `json:"session_id,omitempty"`
}

type listHoldsResponse struct {
	Holds []holdDTO `json:"holds"`
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

func toHoldDTO(hold application.Hold) holdDTO {
	return holdDTO{
		ID:        hold.ID,
		StaffID:   hold.StaffID,
		RoomID:    hold.RoomID,
		Date:      hold.Date,
		StartTime: hold.StartTime,
		EndTime:   hold.EndTime,
		ExpiresAt: hold.ExpiresAt.UTC().Format(time.RFC3339),
		SessionID: hold.SessionID,
	}
}

func toHoldDTOs(holds []application.Hold) []holdDTO {
	out := make([]holdDTO, 0, len(holds))
	for _, hold := range holds {
		out = append(out, toHoldDTO(hold))
	}
	return out
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
