package logging

import (
	"context"

	"go.uber.org/zap"

	"opsdesk/internal/core"
)

// AuditRecorder writes operational audit entries as structured log lines
// tagged audit=true. Failed operations log at warn.
type AuditRecorder struct {
	log *zap.Logger
}

var _ core.AuditRecorder = (*AuditRecorder)(nil)

// NewAuditRecorder returns a recorder writing to l.
func NewAuditRecorder(l *zap.Logger) *AuditRecorder {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuditRecorder{log: l}
}

// Record implements core.AuditRecorder.
func (r *AuditRecorder) Record(_ context.Context, entry core.AuditEntry) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("operation", entry.Operation),
		zap.String("entity", string(entry.Entity)),
		zap.String("action", string(entry.Action)),
		zap.String("status", string(entry.Status)),
		zap.Duration("duration", entry.Duration),
		zap.Time("at", entry.Timestamp),
	}
	if entry.EntityID != "" {
		fields = append(fields, zap.String("entity_id", entry.EntityID))
	}
	if entry.Actor.UserID != "" {
		fields = append(fields, zap.String("actor_id", entry.Actor.UserID), zap.String("actor_role", string(entry.Actor.Role)))
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}

	if entry.Status == core.AuditStatusSuccess {
		r.log.Info("audit event", fields...)
	} else {
		r.log.Warn("audit event", fields...)
	}
}
