package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/practice-scheduler/internal/application"
)

type availabilityService interface {
	GetAvailableSlots(ctx context.Context, organizationID string, query application.AvailabilityQuery) ([]application.AvailableSlot, error)
	GetStaffDayAvailability(ctx context.Context, organizationID, staffID, date string) (*application.StaffDayAvailability, error)
	IsSlotAvailable(ctx context.Context, organizationID, staffID, date, startTime, endTime, excludeSessionID string) (application.SlotCheckResult, error)
}

type AvailabilityHandler struct {
	service   availabilityService
	responder responder
}

func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, responder: newResponder(logger)}
}

func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
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
	query := application.AvailabilityQuery{
		DateFrom:  strings.TrimSpace(values.Get("date_from")),
		DateTo:    strings.TrimSpace(values.Get("date_to")),
		StaffID:   strings.TrimSpace(values.Get("staff_id")),
		RoomID:    strings.TrimSpace(values.Get("room_id")),
		PatientID: strings.TrimSpace(values.Get("patient_id")),
	}
	if raw := strings.TrimSpace(values.Get("duration_minutes")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"duration_minutes": "must be an integer"},
			})
			return
		}
		query.DurationMinutes = minutes
	}

	slots, err := h.service.GetAvailableSlots(r.Context(), organizationID, query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, availableSlotsResponse{Slots: toSlotDTOs(slots)})
}

func (h *AvailabilityHandler) StaffDay(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	staffID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(staffID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))

	day, err := h.service.GetStaffDayAvailability(r.Context(), organizationID, staffID, date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if day == nil {
		h.responder.handleServiceError(r.Context(), w, application.ErrNotFound)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStaffDayDTO(*day))
}

func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
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
	result, err := h.service.IsSlotAvailable(
		r.Context(),
		organizationID,
		strings.TrimSpace(values.Get("staff_id")),
		strings.TrimSpace(values.Get("date")),
		strings.TrimSpace(values.Get("start_time")),
		strings.TrimSpace(values.Get("end_time")),
		strings.TrimSpace(values.Get("exclude_session_id")),
	)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotCheckDTO{
		Available: result.Available,
		Conflict:  result.Conflict,
		Reason:    result.Reason,
	})
}

type availableSlotsResponse struct {
	Slots []availableSlotDTO `json:"slots"`
}

type availableSlotDTO struct {
	StaffID   string `json:"staff_id"`
	RoomID    string `json:"room_id,omitempty"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func toSlotDTOs(slots []application.AvailableSlot) []availableSlotDTO {
	out := make([]availableSlotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, availableSlotDTO{
			StaffID:   slot.StaffID,
			RoomID:    slot.RoomID,
			Date:      slot.Date,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
		})
	}
	return out
}

type staffDayDTO struct {
	StaffID string          `json:"staff_id"`
	Date    string          `json:"date"`
	Windows []timeWindowDTO `json:"windows"`
}

type timeWindowDTO struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Busy      bool   `json:"busy"`
	Reason    string `json:"reason,omitempty"`
}

func toStaffDayDTO(day application.StaffDayAvailability) staffDayDTO {
	windows := make([]timeWindowDTO, 0, len(day.Windows))
	for _, window := range day.Windows {
		windows = append(windows, timeWindowDTO{
			StartTime: window.StartTime,
			EndTime:   window.EndTime,
			Busy:      window.Busy,
			Reason:    window.Reason,
		})
	}
	return staffDayDTO{StaffID: day.StaffID, Date: day.Date, Windows: windows}
}

type slotCheckDTO struct {
	Available bool   `json:"available"`
	Conflict  string `json:"conflict,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
