package application

import (
	"context"
	"log/slog"
)

// LogAuditSink emits session audit records to a structured logger. It serves
// deployments that ship logs to their audit pipeline instead of keeping a
// dedicated audit table.
type LogAuditSink struct {
	logger *slog.Logger
}

// NewLogAuditSink builds a sink writing to logger, or slog.Default when nil.
func NewLogAuditSink(logger *slog.Logger) *LogAuditSink {
	return &LogAuditSink{logger: defaultLogger(logger)}
}

// RecordSessionAudit implements AuditSink.
func (s *LogAuditSink) RecordSessionAudit(ctx context.Context, record SessionAuditRecord) {
	serviceLogger(ctx, s.logger, "audit", "session_status").InfoContext(ctx,
		"session status changed",
		"organization_id", record.OrganizationID,
		"session_id", record.SessionID,
		"from_status", record.FromStatus,
		"to_status", record.ToStatus,
		"reason", record.Reason,
		"actor_id", record.ActorID,
		"at", record.At,
	)
}
