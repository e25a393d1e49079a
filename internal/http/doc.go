// Package http provides HTTP handlers and middleware for the practice
// scheduling API. Every endpoint is organization-scoped: the
// RequireOrganization middleware reads the tenant from the
// `X-Organization-ID` header and the acting user from `X-User-ID`.
//
// The router exposes the following endpoints:
//   - GET /availability/slots: lists bookable openings for a date range,
//     filtered by staff_id, room_id, patient_id and duration_minutes.
//   - GET /availability/staff/{id}/day: free/busy breakdown for one staff
//     member on one day.
//   - GET /availability/check: point check of a single slot; names the
//     blocking session, hold or time off when unavailable.
//   - POST /holds, GET /holds, GET /holds/{id}, POST /holds/{id}/extend,
//     DELETE /holds/{id}, POST /holds/cleanup: appointment hold lifecycle.
//     A hold reserves a slot for a short window so the caller can finish
//     intake before committing; cleanup purges lapsed holds.
//   - POST /bookings/from-hold, POST /bookings/direct: commit a hold into a
//     session, or book a slot in one step. Conflicting writes return 409
//     with the blocking entity identified.
//   - GET /sessions, GET /sessions/{id}, and POST /sessions/{id}/{action}
//     for approve, confirm, check-in, start, complete, cancel and no-show:
//     session lifecycle. Illegal transitions return 409 listing the allowed
//     next statuses.
//   - POST /schedules/generate, GET /schedules, GET /schedules/{id},
//     POST /schedules/{id}/publish, POST /schedules/{id}/archive,
//     POST /schedules/{id}/copy, POST /schedules/{id}/copy-validated:
//     weekly schedule versions. Generation calls the external planner and
//     returns 503 when it is unreachable; rules pending review block
//     generation with 409.
//
// Request/response DTOs live alongside their respective handlers so tests
// and documentation share the same ground truth.
package http
