package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/practice-scheduler/internal/application"
)

type bookingService interface {
	BookFromHold(ctx context.Context, organizationID string, params application.BookFromHoldParams) (application.Session, error)
	BookDirect(ctx context.Context, organizationID string, params application.DirectBookingParams) (application.Session, error)
}

type BookingHandler struct {
	service   bookingService
	responder responder
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, responder: newResponder(logger)}
}

func (h *BookingHandler) FromHold(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	var req bookFromHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	session, err := h.service.BookFromHold(r.Context(), organizationID, application.BookFromHoldParams{
		Principal:  principal,
		HoldID:     strings.TrimSpace(req.HoldID),
		ScheduleID: strings.TrimSpace(req.ScheduleID),
		PatientID:  strings.TrimSpace(req.PatientID),
		Notes:      req.Notes,
		BookedVia:  strings.TrimSpace(req.BookedVia),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSessionDTO(session))
}

func (h *BookingHandler) Direct(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	var req directBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	session, err := h.service.BookDirect(r.Context(), organizationID, application.DirectBookingParams{
		Principal:  principal,
		ScheduleID: strings.TrimSpace(req.ScheduleID),
		StaffID:    strings.TrimSpace(req.StaffID),
		PatientID:  strings.TrimSpace(req.PatientID),
		RoomID:     trimPtr(req.RoomID),
		Date:       strings.TrimSpace(req.Date),
		StartTime:  strings.TrimSpace(req.StartTime),
		EndTime:    strings.TrimSpace(req.EndTime),
		Notes:      req.Notes,
		BookedVia:  strings.TrimSpace(req.BookedVia),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSessionDTO(session))
}

type bookFromHoldRequest struct {
	HoldID     string `json:"hold_id"`
	ScheduleID string `json:"schedule_id"`
	PatientID  string `json:"patient_id"`
	Notes      string `json:"notes"`
	BookedVia  string `json:"booked_via"`
}

type directBookingRequest struct {
	ScheduleID string  `json:"schedule_id"`
	StaffID    string  `json:"staff_id"`
	PatientID  string  `json:"patient_id"`
	RoomID     *string `json:"room_id"`
	Date       string  `json:"date"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Notes      string  `json:"notes"`
	BookedVia  string  `json:"booked_via"`
}

type sessionDTO struct {
	ID                 string  `json:"id"`
	ScheduleID         string  `json:"schedule_id"`
	StaffID            string  `json:"staff_id"`
	PatientID          string  `json:"patient_id"`
	RoomID             *string `json:"room_id,omitempty"`
	Date               string  `json:"date"`
	StartTime          string  `json:"start_time"`
	EndTime            string  `json:"end_time"`
	Status             string  `json:"status"`
	Notes              string  `json:"notes,omitempty"`
	BookedVia          string  `json:"booked_via,omitempty"`
	CancellationReason string  `json:"cancellation_reason,omitempty"`
}

func toSessionDTO(session application.Session) sessionDTO {
	return sessionDTO{
		ID:                 session.ID,
		ScheduleID:         session.ScheduleID,
		StaffID:            session.StaffID,
		PatientID:          session.PatientID,
		RoomID:             session.RoomID,
		Date:               session.Date,
		StartTime:          session.StartTime,
		EndTime:            session.EndTime,
		Status:             session.Status,
		Notes:              session.Notes,
		BookedVia:          session.BookedVia,
		CancellationReason: session.CancellationReason,
	}
}

func toSessionDTOs(sessions []application.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionDTO(session))
	}
	return out
}
