package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/practice-scheduler/internal/application"
	"github.com/example/practice-scheduler/internal/rules"
)

type scheduleService interface {
	Generate(ctx context.Context, organizationID string, params application.GenerateScheduleParams) (application.GenerateResult, error)
	GetSchedule(ctx context.Context, organizationID, scheduleID string) (application.Schedule, error)
	ListSchedules(ctx context.Context, organizationID, weekStartDate, status string) ([]application.Schedule, error)
	Publish(ctx context.Context, organizationID, scheduleID string, principal application.Principal) (application.Schedule, error)
	Archive(ctx context.Context, organizationID, scheduleID string, principal application.Principal) (application.Schedule, error)
	CreateDraftCopy(ctx context.Context, organizationID string, params application.CopyScheduleParams) (application.CopyResult, error)
	CreateDraftCopyWithValidation(ctx context.Context, organizationID string, params application.CopyScheduleParams) (application.CopyResult, error)
}

type ScheduleHandler struct {
	service   scheduleService
	responder responder
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, responder: newResponder(logger)}
}

func (h *ScheduleHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	var req generateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.Generate(r.Context(), organizationID, application.GenerateScheduleParams{
		Principal:     principal,
		WeekStartDate: strings.TrimSpace(req.WeekStartDate),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, generateResponse{
		Schedule: toScheduleDTO(result.Schedule),
		Sessions: toSessionDTOs(result.Sessions),
		Warnings: result.Warnings,
	})
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	scheduleID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(scheduleID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), organizationID, scheduleID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
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
	schedules, err := h.service.ListSchedules(
		r.Context(),
		organizationID,
		strings.TrimSpace(values.Get("week_start_date")),
		strings.TrimSpace(values.Get("status")),
	)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSchedulesResponse{Schedules: toScheduleDTOs(schedules)})
}

func (h *ScheduleHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "publish")
}

func (h *ScheduleHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "archive")
}

func (h *ScheduleHandler) changeStatus(w http.ResponseWriter, r *http.Request, action string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	scheduleID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(scheduleID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var (
		schedule application.Schedule
		err      error
	)
	if action == "publish" {
		schedule, err = h.service.Publish(r.Context(), organizationID, scheduleID, principal)
	} else {
		schedule, err = h.service.Archive(r.Context(), organizationID, scheduleID, principal)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Copy(w http.ResponseWriter, r *http.Request) {
	h.copySchedule(w, r, false)
}

func (h *ScheduleHandler) CopyValidated(w http.ResponseWriter, r *http.Request) {
	h.copySchedule(w, r, true)
}

func (h *ScheduleHandler) copySchedule(w http.ResponseWriter, r *http.Request, validate bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	organizationID, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingOrganization)
		return
	}

	scheduleID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(scheduleID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	params := application.CopyScheduleParams{
		Principal:        principal,
		SourceScheduleID: scheduleID,
	}

	var (
		result application.CopyResult
		err    error
	)
	if validate {
		result, err = h.service.CreateDraftCopyWithValidation(r.Context(), organizationID, params)
	} else {
		result, err = h.service.CreateDraftCopy(r.Context(), organizationID, params)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toCopyResponse(result))
}

type generateScheduleRequest struct {
	WeekStartDate string `json:"week_start_date"`
}

type generateResponse struct {
	Schedule scheduleDTO  `json:"schedule"`
	Sessions []sessionDTO `json:"sessions"`
	Warnings []string     `json:"warnings,omitempty"`
}

type listSchedulesResponse struct {
	Schedules []scheduleDTO `json:"schedules"`
}

type scheduleDTO struct {
	ID            string `json:"id"`
	WeekStartDate string `json:"week_start_date"`
	Status        string `json:"status"`
	Version       int    `json:"version"`
	CreatedBy     string `json:"created_by,omitempty"`
}

func toScheduleDTO(schedule application.Schedule) scheduleDTO {
	return scheduleDTO{
		ID:            schedule.ID,
		WeekStartDate: schedule.WeekStartDate,
		Status:        schedule.Status,
		Version:       schedule.Version,
		CreatedBy:     schedule.CreatedBy,
	}
}

func toScheduleDTOs(schedules []application.Schedule) []scheduleDTO {
	out := make([]scheduleDTO, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, toScheduleDTO(schedule))
	}
	return out
}

type copyResponse struct {
	Schedule          scheduleDTO       `json:"schedule"`
	Sessions          []sessionDTO      `json:"sessions"`
	Regenerated       []modificationDTO `json:"regenerated,omitempty"`
	Removed           []removalDTO      `json:"removed,omitempty"`
	Warnings          []violationDTO    `json:"warnings,omitempty"`
	SkippedValidation bool              `json:"skipped_validation,omitempty"`
	SkipReason        string            `json:"skip_reason,omitempty"`
}

type modificationDTO struct {
	SessionID string     `json:"session_id"`
	Before    sessionDTO `json:"before"`
	After     sessionDTO `json:"after"`
	RuleID    string     `json:"rule_id"`
}

type removalDTO struct {
	SessionID string     `json:"session_id"`
	Session   sessionDTO `json:"session"`
	RuleID    string     `json:"rule_id"`
	Reason    string     `json:"reason"`
}

type violationDTO struct {
	RuleID    string `json:"rule_id"`
	Category  string `json:"category"`
	Priority  string `json:"priority"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

func toCopyResponse(result application.CopyResult) copyResponse {
	response := copyResponse{
		Schedule:          toScheduleDTO(result.Schedule),
		Sessions:          toSessionDTOs(result.Sessions),
		SkippedValidation: result.SkippedValidation,
		SkipReason:        result.SkipReason,
	}
	for _, record := range result.Regenerated {
		response.Regenerated = append(response.Regenerated, modificationDTO{
			SessionID: record.SessionID,
			Before:    toSessionDTO(record.Before),
			After:     toSessionDTO(record.After),
			RuleID:    record.RuleID,
		})
	}
	for _, record := range result.Removed {
		response.Removed = append(response.Removed, removalDTO{
			SessionID: record.SessionID,
			Session:   toSessionDTO(record.Session),
			RuleID:    record.RuleID,
			Reason:    record.Reason,
		})
	}
	response.Warnings = toViolationDTOs(result.Warnings)
	return response
}

func toViolationDTOs(violations []rules.Violation) []violationDTO {
	if len(violations) == 0 {
		return nil
	}
	out := make([]violationDTO, 0, len(violations))
	for _, violation := range violations {
		out = append(out, violationDTO{
			RuleID:    violation.RuleID,
			Category:  violation.Category,
			Priority:  string(violation.Priority),
			SessionID: violation.SessionID,
			Message:   violation.Message,
		})
	}
	return out
}
