package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/practice-scheduler/internal/application"
	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/rules"
	"github.com/example/practice-scheduler/internal/statemachine"
)

type stubAvailabilityService struct {
	slots    func(ctx context.Context, organizationID string, query application.AvailabilityQuery) ([]application.AvailableSlot, error)
	staffDay func(ctx context.Context, organizationID, staffID, date string) (*application.StaffDayAvailability, error)
	check    func(ctx context.Context, organizationID, staffID, date, startTime, endTime, excludeSessionID string) (application.SlotCheckResult, error)
}

func (s stubAvailabilityService) GetAvailableSlots(ctx context.Context, organizationID string, query application.AvailabilityQuery) ([]application.AvailableSlot, error) {
	return s.slots(ctx, organizationID, query)
}

func (s stubAvailabilityService) GetStaffDayAvailability(ctx context.Context, organizationID, staffID, date string) (*application.StaffDayAvailability, error) {
	return s.staffDay(ctx, organizationID, staffID, date)
}

func (s stubAvailabilityService) IsSlotAvailable(ctx context.Context, organizationID, staffID, date, startTime, endTime, excludeSessionID string) (application.SlotCheckResult, error) {
	return s.check(ctx, organizationID, staffID, date, startTime, endTime, excludeSessionID)
}

type stubHoldService struct {
	create  func(ctx context.Context, organizationID string, params application.CreateHoldParams) (application.Hold, error)
	get     func(ctx context.Context, organizationID, holdID string) (application.Hold, error)
	extend  func(ctx context.Context, organizationID, holdID string, additionalMinutes int) (application.Hold, error)
	release func(ctx context.Context, organizationID, holdID string) error
	list    func(ctx context.Context, organizationID, dateFrom, dateTo string) ([]application.Hold, error)
	cleanup func(ctx context.Context) (int, error)
}

func (s stubHoldService) CreateHold(ctx context.Context, organizationID string, params application.CreateHoldParams) (application.Hold, error) {
	return s.create(ctx, organizationID, params)
}

func (s stubHoldService) GetHold(ctx context.Context, organizationID, holdID string) (application.Hold, error) {
	return s.get(ctx, organizationID, holdID)
}

func (s stubHoldService) ExtendHold(ctx context.Context, organizationID, holdID string, additionalMinutes int) (application.Hold, error) {
	return s.extend(ctx, organizationID, holdID, additionalMinutes)
}

func (s stubHoldService) ReleaseHold(ctx context.Context, organizationID, holdID string) error {
	return s.release(ctx, organizationID, holdID)
}

func (s stubHoldService) ListActiveHolds(ctx context.Context, organizationID, dateFrom, dateTo string) ([]application.Hold, error) {
	return s.list(ctx, organizationID, dateFrom, dateTo)
}

func (s stubHoldService) CleanupExpired(ctx context.Context) (int, error) {
	return s.cleanup(ctx)
}

type stubBookingService struct {
	fromHold func(ctx context.Context, organizationID string, params application.BookFromHoldParams) (application.Session, error)
	direct   func(ctx context.Context, organizationID string, params application.DirectBookingParams) (application.Session, error)
}

func (s stubBookingService) BookFromHold(ctx context.Context, organizationID string, params application.BookFromHoldParams) (application.Session, error) {
	return s.fromHold(ctx, organizationID, params)
}

func (s stubBookingService) BookDirect(ctx context.Context, organizationID string, params application.DirectBookingParams) (application.Session, error) {
	return s.direct(ctx, organizationID, params)
}

type stubSessionService struct {
	get        func(ctx context.Context, organizationID, sessionID string) (application.Session, error)
	list       func(ctx context.Context, organizationID string, query application.SessionListQuery) ([]application.Session, error)
	transition func(action, organizationID, sessionID string, principal application.Principal) (application.Session, error)
	cancel     func(ctx context.Context, organizationID string, params application.CancelSessionParams) (application.Session, error)
}

func (s stubSessionService) GetSession(ctx context.Context, organizationID, sessionID string) (application.Session, error) {
	return s.get(ctx, organizationID, sessionID)
}

func (s stubSessionService) ListSessions(ctx context.Context, organizationID string, query application.SessionListQuery) ([]application.Session, error) {
	return s.list(ctx, organizationID, query)
}

func (s stubSessionService) Approve(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error) {
	return s.transition("approve", organizationID, sessionID, principal)
}

func (s stubSessionService) Confirm(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error) {
	return s.transition("confirm", organizationID, sessionID, principal)
}

func (s stubSessionService) CheckIn(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error) {
	return s.transition("check-in", organizationID, sessionID, principal)
}

func (s stubSessionService) Start(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error) {
	return s.transition("start", organizationID, sessionID, principal)
}

func (s stubSessionService) Complete(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error) {
	return s.transition("complete", organizationID, sessionID, principal)
}

func (s stubSessionService) MarkNoShow(ctx context.Context, organizationID, sessionID string, principal application.Principal) (application.Session, error) {
	return s.transition("no-show", organizationID, sessionID, principal)
}

func (s stubSessionService) Cancel(ctx context.Context, organizationID string, params application.CancelSessionParams) (application.Session, error) {
	return s.cancel(ctx, organizationID, params)
}

type stubScheduleService struct {
	generate func(ctx context.Context, organizationID string, params application.GenerateScheduleParams) (application.GenerateResult, error)
	get      func(ctx context.Context, organizationID, scheduleID string) (application.Schedule, error)
	list     func(ctx context.Context, organizationID, weekStartDate, status string) ([]application.Schedule, error)
	publish  func(ctx context.Context, organizationID, scheduleID string, principal application.Principal) (application.Schedule, error)
	archive  func(ctx context.Context, organizationID, scheduleID string, principal application.Principal) (application.Schedule, error)
	copy     func(validate bool, organizationID string, params application.CopyScheduleParams) (application.CopyResult, error)
}

func (s stubScheduleService) Generate(ctx context.Context, organizationID string, params application.GenerateScheduleParams) (application.GenerateResult, error) {
	return s.generate(ctx, organizationID, params)
}

func (s stubScheduleService) GetSchedule(ctx context.Context, organizationID, scheduleID string) (application.Schedule, error) {
	return s.get(ctx, organizationID, scheduleID)
}

func (s stubScheduleService) ListSchedules(ctx context.Context, organizationID, weekStartDate, status string) ([]application.Schedule, error) {
	return s.list(ctx, organizationID, weekStartDate, status)
}

func (s stubScheduleService) Publish(ctx context.Context, organizationID, scheduleID string, principal application.Principal) (application.Schedule, error) {
	return s.publish(ctx, organizationID, scheduleID, principal)
}

func (s stubScheduleService) Archive(ctx context.Context, organizationID, scheduleID string, principal application.Principal) (application.Schedule, error) {
	return s.archive(ctx, organizationID, scheduleID, principal)
}

func (s stubScheduleService) CreateDraftCopy(ctx context.Context, organizationID string, params application.CopyScheduleParams) (application.CopyResult, error) {
	return s.copy(false, organizationID, params)
}

func (s stubScheduleService) CreateDraftCopyWithValidation(ctx context.Context, organizationID string, params application.CopyScheduleParams) (application.CopyResult, error) {
	return s.copy(true, organizationID, params)
}

type routerStubs struct {
	availability availabilityService
	holds        holdService
	bookings     bookingService
	sessions     sessionService
	schedules    scheduleService
}

func newTestRouter(stubs routerStubs) http.Handler {
	cfg := RouterConfig{
		Middleware: []func(http.Handler) http.Handler{RequireOrganization(nil)},
	}
	if stubs.availability != nil {
		cfg.Availability = NewAvailabilityHandler(stubs.availability, nil)
	}
	if stubs.holds != nil {
		cfg.Holds = NewHoldHandler(stubs.holds, nil)
	}
	if stubs.bookings != nil {
		cfg.Bookings = NewBookingHandler(stubs.bookings, nil)
	}
	if stubs.sessions != nil {
		cfg.Sessions = NewSessionHandler(stubs.sessions, nil)
	}
	if stubs.schedules != nil {
		cfg.Schedules = NewScheduleHandler(stubs.schedules, nil)
	}
	return NewRouter(cfg)
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("X-Organization-ID", "org-1")
	req.Header.Set("X-User-ID", "user-1")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), out))
}

func TestAvailabilityHandler(t *testing.T) {
	t.Parallel()

	t.Run("lists slots with query filters applied", func(t *testing.T) {
		t.Parallel()

		var gotOrg string
		var gotQuery application.AvailabilityQuery
		router := newTestRouter(routerStubs{availability: stubAvailabilityService{
			slots: func(_ context.Context, organizationID string, query application.AvailabilityQuery) ([]application.AvailableSlot, error) {
				gotOrg = organizationID
				gotQuery = query
				return []application.AvailableSlot{
					{StaffID: "staff-1", Date: "2025-06-02", StartTime: "09:00", EndTime: "10:00"},
				}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet,
			"/availability/slots?date_from=2025-06-02&date_to=2025-06-06&staff_id=staff-1&duration_minutes=60", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "org-1", gotOrg)
		assert.Equal(t, "2025-06-02", gotQuery.DateFrom)
		assert.Equal(t, "staff-1", gotQuery.StaffID)
		assert.Equal(t, 60, gotQuery.DurationMinutes)

		var body struct {
			Slots []map[string]any `json:"slots"`
		}
		decodeBody(t, recorder, &body)
		require.Len(t, body.Slots, 1)
		assert.Equal(t, "09:00", body.Slots[0]["start_time"])
	})

	t.Run("rejects a non-numeric duration", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{availability: stubAvailabilityService{
			slots: func(context.Context, string, application.AvailabilityQuery) ([]application.AvailableSlot, error) {
				t.Error("service should not be called")
				return nil, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet, "/availability/slots?duration_minutes=soon", "")

		require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, codeValidation, body.ErrorCode)
		assert.Contains(t, body.Errors, "duration_minutes")
	})

	t.Run("maps validation failures from the service", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{availability: stubAvailabilityService{
			slots: func(context.Context, string, application.AvailabilityQuery) ([]application.AvailableSlot, error) {
				return nil, &application.ValidationError{FieldErrors: map[string]string{"date_from": "must be YYYY-MM-DD"}}
			},
		}})

		recorder := doRequest(t, router, http.MethodGet, "/availability/slots?date_from=bogus", "")

		require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, codeValidation, body.ErrorCode)
		assert.Contains(t, body.Errors, "date_from")
	})

	t.Run("returns a staff day breakdown", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{availability: stubAvailabilityService{
			staffDay: func(_ context.Context, _, staffID, date string) (*application.StaffDayAvailability, error) {
				return &application.StaffDayAvailability{
					StaffID: staffID,
					Date:    date,
					Windows: []application.TimeWindow{
						{StartTime: "00:00", EndTime: "09:00", Busy: true, Reason: "outside_hours"},
						{StartTime: "09:00", EndTime: "12:00"},
					},
				}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet, "/availability/staff/staff-1/day?date=2025-06-02", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		var body staffDayDTO
		decodeBody(t, recorder, &body)
		assert.Equal(t, "staff-1", body.StaffID)
		require.Len(t, body.Windows, 2)
		assert.True(t, body.Windows[0].Busy)
		assert.Equal(t, "outside_hours", body.Windows[0].Reason)
	})

	t.Run("unknown staff yields 404", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{availability: stubAvailabilityService{
			staffDay: func(context.Context, string, string, string) (*application.StaffDayAvailability, error) {
				return nil, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet, "/availability/staff/ghost/day?date=2025-06-02", "")

		require.Equal(t, http.StatusNotFound, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, codeNotFound, body.ErrorCode)
	})

	t.Run("point check passes the exclusion through", func(t *testing.T) {
		t.Parallel()

		var gotExclude string
		router := newTestRouter(routerStubs{availability: stubAvailabilityService{
			check: func(_ context.Context, _, _, _, _, _, excludeSessionID string) (application.SlotCheckResult, error) {
				gotExclude = excludeSessionID
				return application.SlotCheckResult{Available: false, Conflict: "sess-2", Reason: "session"}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet,
			"/availability/check?staff_id=staff-1&date=2025-06-02&start_time=09:00&end_time=10:00&exclude_session_id=sess-1", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "sess-1", gotExclude)
		var body slotCheckDTO
		decodeBody(t, recorder, &body)
		assert.False(t, body.Available)
		assert.Equal(t, "sess-2", body.Conflict)
		assert.Equal(t, "session", body.Reason)
	})
}

func TestHoldHandler(t *testing.T) {
	t.Parallel()

	expiry := time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)

	t.Run("creates a hold", func(t *testing.T) {
		t.Parallel()

		var gotParams application.CreateHoldParams
		router := newTestRouter(routerStubs{holds: stubHoldService{
			create: func(_ context.Context, _ string, params application.CreateHoldParams) (application.Hold, error) {
				gotParams = params
				return application.Hold{
					ID:        "hold-1",
					StaffID:   params.StaffID,
					Date:      params.Date,
					StartTime: params.StartTime,
					EndTime:   params.EndTime,
					ExpiresAt: expiry,
				}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/holds",
			`{"staff_id":"staff-1","date":"2025-06-02","start_time":"09:00","end_time":"10:00"}`)

		require.Equal(t, http.StatusCreated, recorder.Code)
		require.NotNil(t, gotParams.StaffID)
		assert.Equal(t, "staff-1", *gotParams.StaffID)
		assert.Equal(t, "user-1", gotParams.Principal.UserID)

		var body holdDTO
		decodeBody(t, recorder, &body)
		assert.Equal(t, "hold-1", body.ID)
		assert.Equal(t, "2025-06-01T12:10:00Z", body.ExpiresAt)
	})

	t.Run("conflicting hold reports the blocker", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{holds: stubHoldService{
			create: func(context.Context, string, application.CreateHoldParams) (application.Hold, error) {
				return application.Hold{}, &persistence.SlotConflictError{Resource: "staff", HoldID: "hold-9"}
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/holds",
			`{"staff_id":"staff-1","date":"2025-06-02","start_time":"09:00","end_time":"10:00"}`)

		require.Equal(t, http.StatusConflict, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, codeConflict, body.ErrorCode)
		require.NotNil(t, body.Conflict)
		assert.Equal(t, "staff", body.Conflict.Resource)
		assert.Equal(t, "hold-9", body.Conflict.HoldID)
		assert.Empty(t, body.Conflict.SessionID)
	})

	t.Run("malformed body yields 400", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{holds: stubHoldService{
			create: func(context.Context, string, application.CreateHoldParams) (application.Hold, error) {
				t.Error("service should not be called")
				return application.Hold{}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/holds", `{"staff_id"`)

		require.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("extends a hold", func(t *testing.T) {
		t.Parallel()

		var gotID string
		var gotMinutes int
		router := newTestRouter(routerStubs{holds: stubHoldService{
			extend: func(_ context.Context, _, holdID string, additionalMinutes int) (application.Hold, error) {
				gotID = holdID
				gotMinutes = additionalMinutes
				return application.Hold{ID: holdID, ExpiresAt: expiry}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/holds/hold-1/extend", `{"additional_minutes":15}`)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "hold-1", gotID)
		assert.Equal(t, 15, gotMinutes)
	})

	t.Run("releases a hold", func(t *testing.T) {
		t.Parallel()

		var released string
		router := newTestRouter(routerStubs{holds: stubHoldService{
			release: func(_ context.Context, _, holdID string) error {
				released = holdID
				return nil
			},
		}})

		recorder := doRequest(t, router, http.MethodDelete, "/holds/hold-1", "")

		require.Equal(t, http.StatusNoContent, recorder.Code)
		assert.Equal(t, "hold-1", released)
		assert.Empty(t, recorder.Body.String())
	})

	t.Run("missing hold yields 404", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{holds: stubHoldService{
			get: func(context.Context, string, string) (application.Hold, error) {
				return application.Hold{}, application.ErrNotFound
			},
		}})

		recorder := doRequest(t, router, http.MethodGet, "/holds/ghost", "")

		require.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("lists active holds for a range", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{holds: stubHoldService{
			list: func(_ context.Context, _, dateFrom, dateTo string) ([]application.Hold, error) {
				assert.Equal(t, "2025-06-02", dateFrom)
				assert.Equal(t, "2025-06-06", dateTo)
				return []application.Hold{{ID: "hold-1", ExpiresAt: expiry}}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet, "/holds?date_from=2025-06-02&date_to=2025-06-06", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		var body listHoldsResponse
		decodeBody(t, recorder, &body)
		require.Len(t, body.Holds, 1)
	})

	t.Run("cleanup reports the purge count", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{holds: stubHoldService{
			cleanup: func(context.Context) (int, error) { return 3, nil },
		}})

		recorder := doRequest(t, router, http.MethodPost, "/holds/cleanup", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		var body cleanupResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, 3, body.Removed)
	})
}

func TestBookingHandler(t *testing.T) {
	t.Parallel()

	t.Run("books from a hold", func(t *testing.T) {
		t.Parallel()

		var gotParams application.BookFromHoldParams
		router := newTestRouter(routerStubs{bookings: stubBookingService{
			fromHold: func(_ context.Context, _ string, params application.BookFromHoldParams) (application.Session, error) {
				gotParams = params
				return application.Session{ID: "sess-1", Status: "scheduled", StaffID: "staff-1", PatientID: params.PatientID}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/bookings/from-hold",
			`{"hold_id":"hold-1","patient_id":"patient-1"}`)

		require.Equal(t, http.StatusCreated, recorder.Code)
		assert.Equal(t, "hold-1", gotParams.HoldID)
		assert.Equal(t, "user-1", gotParams.Principal.UserID)

		var body sessionDTO
		decodeBody(t, recorder, &body)
		assert.Equal(t, "sess-1", body.ID)
		assert.Equal(t, "scheduled", body.Status)
	})

	t.Run("direct booking conflict reports the session", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{bookings: stubBookingService{
			direct: func(context.Context, string, application.DirectBookingParams) (application.Session, error) {
				return application.Session{}, &persistence.SlotConflictError{Resource: "patient", SessionID: "sess-7"}
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/bookings/direct",
			`{"staff_id":"staff-1","patient_id":"patient-1","date":"2025-06-02","start_time":"09:00","end_time":"10:00"}`)

		require.Equal(t, http.StatusConflict, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		require.NotNil(t, body.Conflict)
		assert.Equal(t, "patient", body.Conflict.Resource)
		assert.Equal(t, "sess-7", body.Conflict.SessionID)
	})
}

func TestSessionHandler(t *testing.T) {
	t.Parallel()

	t.Run("dispatches lifecycle actions", func(t *testing.T) {
		t.Parallel()

		var gotAction, gotID string
		router := newTestRouter(routerStubs{sessions: stubSessionService{
			transition: func(action, _, sessionID string, _ application.Principal) (application.Session, error) {
				gotAction = action
				gotID = sessionID
				return application.Session{ID: sessionID, Status: "confirmed"}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/sessions/sess-1/confirm", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "confirm", gotAction)
		assert.Equal(t, "sess-1", gotID)
	})

	t.Run("cancel forwards the reason and accepts an empty body", func(t *testing.T) {
		t.Parallel()

		var gotReason string
		router := newTestRouter(routerStubs{sessions: stubSessionService{
			cancel: func(_ context.Context, _ string, params application.CancelSessionParams) (application.Session, error) {
				gotReason = params.Reason
				return application.Session{ID: params.SessionID, Status: "cancelled", CancellationReason: params.Reason}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/sessions/sess-1/cancel", `{"reason":"illness"}`)
		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "illness", gotReason)

		recorder = doRequest(t, router, http.MethodPost, "/sessions/sess-1/cancel", "")
		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Empty(t, gotReason)
	})

	t.Run("illegal transition lists the allowed next statuses", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{sessions: stubSessionService{
			transition: func(string, string, string, application.Principal) (application.Session, error) {
				return application.Session{}, &statemachine.InvalidTransitionError{
					From:      statemachine.StatusScheduled,
					Requested: statemachine.StatusCheckedIn,
					Allowed:   []statemachine.Status{statemachine.StatusConfirmed, statemachine.StatusCancelled},
				}
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/sessions/sess-1/check-in", "")

		require.Equal(t, http.StatusConflict, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, codeInvalidTransition, body.ErrorCode)
		require.NotNil(t, body.Transition)
		assert.Equal(t, "scheduled", body.Transition.From)
		assert.Equal(t, "checked_in", body.Transition.Requested)
		assert.Contains(t, body.Transition.Allowed, "confirmed")
	})

	t.Run("unknown action yields 404", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{sessions: stubSessionService{
			transition: func(string, string, string, application.Principal) (application.Session, error) {
				t.Error("service should not be called")
				return application.Session{}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/sessions/sess-1/escalate", "")

		require.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("list maps query parameters", func(t *testing.T) {
		t.Parallel()

		var gotQuery application.SessionListQuery
		router := newTestRouter(routerStubs{sessions: stubSessionService{
			list: func(_ context.Context, _ string, query application.SessionListQuery) ([]application.Session, error) {
				gotQuery = query
				return []application.Session{{ID: "sess-1"}}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet,
			"/sessions?schedule_id=sched-1&staff_id=staff-1&date_from=2025-06-02&exclude_terminal=true", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "sched-1", gotQuery.ScheduleID)
		assert.Equal(t, "staff-1", gotQuery.StaffID)
		assert.True(t, gotQuery.ExcludeTerminal)

		var body listSessionsResponse
		decodeBody(t, recorder, &body)
		require.Len(t, body.Sessions, 1)
	})

	t.Run("fetches a session by id", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{sessions: stubSessionService{
			get: func(_ context.Context, _, sessionID string) (application.Session, error) {
				return application.Session{ID: sessionID, Status: "scheduled"}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet, "/sessions/sess-1", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		var body sessionDTO
		decodeBody(t, recorder, &body)
		assert.Equal(t, "sess-1", body.ID)
	})
}

func TestScheduleHandler(t *testing.T) {
	t.Parallel()

	t.Run("generates a draft for a week", func(t *testing.T) {
		t.Parallel()

		var gotWeek string
		router := newTestRouter(routerStubs{schedules: stubScheduleService{
			generate: func(_ context.Context, _ string, params application.GenerateScheduleParams) (application.GenerateResult, error) {
				gotWeek = params.WeekStartDate
				return application.GenerateResult{
					Schedule: application.Schedule{ID: "sched-1", WeekStartDate: params.WeekStartDate, Status: "draft", Version: 1},
					Sessions: []application.Session{{ID: "sess-1", Status: "scheduled"}},
					Warnings: []string{"proposal 2 dropped: unknown staff ghost"},
				}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/schedules/generate", `{"week_start_date":"2025-06-02"}`)

		require.Equal(t, http.StatusCreated, recorder.Code)
		assert.Equal(t, "2025-06-02", gotWeek)

		var body generateResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, "draft", body.Schedule.Status)
		require.Len(t, body.Sessions, 1)
		require.Len(t, body.Warnings, 1)
	})

	t.Run("planner outage yields 503", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{schedules: stubScheduleService{
			generate: func(context.Context, string, application.GenerateScheduleParams) (application.GenerateResult, error) {
				return application.GenerateResult{}, application.ErrPlannerUnavailable
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/schedules/generate", `{"week_start_date":"2025-06-02"}`)

		require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, codePlannerUnavailable, body.ErrorCode)
	})

	t.Run("rules pending review block generation", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{schedules: stubScheduleService{
			generate: func(context.Context, string, application.GenerateScheduleParams) (application.GenerateResult, error) {
				return application.GenerateResult{}, &rules.ReviewRequiredError{RuleIDs: []string{"rule-1", "rule-2"}}
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/schedules/generate", `{"week_start_date":"2025-06-02"}`)

		require.Equal(t, http.StatusConflict, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, codeReviewRequired, body.ErrorCode)
		assert.Equal(t, []string{"rule-1", "rule-2"}, body.RuleIDs)
	})

	t.Run("publishes and archives by id", func(t *testing.T) {
		t.Parallel()

		var actions []string
		router := newTestRouter(routerStubs{schedules: stubScheduleService{
			publish: func(_ context.Context, _, scheduleID string, _ application.Principal) (application.Schedule, error) {
				actions = append(actions, "publish:"+scheduleID)
				return application.Schedule{ID: scheduleID, Status: "published"}, nil
			},
			archive: func(_ context.Context, _, scheduleID string, _ application.Principal) (application.Schedule, error) {
				actions = append(actions, "archive:"+scheduleID)
				return application.Schedule{ID: scheduleID, Status: "archived"}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/schedules/sched-1/publish", "")
		require.Equal(t, http.StatusOK, recorder.Code)

		recorder = doRequest(t, router, http.MethodPost, "/schedules/sched-1/archive", "")
		require.Equal(t, http.StatusOK, recorder.Code)

		assert.Equal(t, []string{"publish:sched-1", "archive:sched-1"}, actions)
	})

	t.Run("copy and validated copy route to different operations", func(t *testing.T) {
		t.Parallel()

		var validated []bool
		router := newTestRouter(routerStubs{schedules: stubScheduleService{
			copy: func(validate bool, _ string, params application.CopyScheduleParams) (application.CopyResult, error) {
				validated = append(validated, validate)
				return application.CopyResult{
					Schedule: application.Schedule{ID: "sched-2", Status: "draft", Version: 2},
					Removed: []application.RemovalRecord{
						{SessionID: "sess-9", RuleID: "rule-1", Reason: "no staff satisfies certification requirement"},
					},
				}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/schedules/sched-1/copy", "")
		require.Equal(t, http.StatusCreated, recorder.Code)

		recorder = doRequest(t, router, http.MethodPost, "/schedules/sched-1/copy-validated", "")
		require.Equal(t, http.StatusCreated, recorder.Code)

		assert.Equal(t, []bool{false, true}, validated)

		var body copyResponse
		decodeBody(t, recorder, &body)
		require.Len(t, body.Removed, 1)
		assert.Equal(t, "sess-9", body.Removed[0].SessionID)
	})

	t.Run("lists schedules with filters", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{schedules: stubScheduleService{
			list: func(_ context.Context, _, weekStartDate, status string) ([]application.Schedule, error) {
				assert.Equal(t, "2025-06-02", weekStartDate)
				assert.Equal(t, "published", status)
				return []application.Schedule{{ID: "sched-1", Status: "published", Version: 1}}, nil
			},
		}})

		recorder := doRequest(t, router, http.MethodGet, "/schedules?week_start_date=2025-06-02&status=published", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		var body listSchedulesResponse
		decodeBody(t, recorder, &body)
		require.Len(t, body.Schedules, 1)
	})

	t.Run("double archive maps to 409", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(routerStubs{schedules: stubScheduleService{
			archive: func(context.Context, string, string, application.Principal) (application.Schedule, error) {
				return application.Schedule{}, application.ErrConflict
			},
		}})

		recorder := doRequest(t, router, http.MethodPost, "/schedules/sched-1/archive", "")

		require.Equal(t, http.StatusConflict, recorder.Code)
		var body errorResponse
		decodeBody(t, recorder, &body)
		assert.Equal(t, codeConflict, body.ErrorCode)
		assert.Nil(t, body.Conflict)
	})
}

func TestRouterMethodHandling(t *testing.T) {
	t.Parallel()

	router := newTestRouter(routerStubs{
		holds: stubHoldService{
			list: func(context.Context, string, string, string) ([]application.Hold, error) { return nil, nil },
			create: func(context.Context, string, application.CreateHoldParams) (application.Hold, error) {
				return application.Hold{}, nil
			},
			cleanup: func(context.Context) (int, error) { return 0, nil },
		},
		sessions: stubSessionService{
			list: func(context.Context, string, application.SessionListQuery) ([]application.Session, error) { return nil, nil },
		},
	})

	t.Run("rejects unsupported methods with Allow header", func(t *testing.T) {
		t.Parallel()

		recorder := doRequest(t, router, http.MethodPut, "/holds", "")
		require.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
		assert.Equal(t, "GET, POST", recorder.Header().Get("Allow"))
	})

	t.Run("unknown subresource is not found", func(t *testing.T) {
		t.Parallel()

		recorder := doRequest(t, router, http.MethodPost, "/holds/hold-1/duplicate", "")
		require.Equal(t, http.StatusNotFound, recorder.Code)
	})
}
