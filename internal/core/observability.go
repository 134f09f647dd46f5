package core

import (
	"context"
	"time"

	"opsdesk/pkg/domain"
)

// Logger is the structured logging contract used by the service. Arguments
// are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome and duration of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan is ended exactly once with the operation error (nil on success).
type TraceSpan interface {
	End(err error)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded for an operational audit entry.
type AuditStatus string

// Audit statuses.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry is the operational record emitted for each service call. It is
// separate from the domain audit log persisted with the snapshot.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Actor     domain.Actor
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives operational audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

// operations maps every audited service operation to the entity and action
// it reports.
var operations = map[string]operationMeta{
	"create_admin":                     {domain.EntityUser, domain.ActionCreate},
	"create_client_user":               {domain.EntityClientUser, domain.ActionCreate},
	"rotate_password":                  {domain.EntityUser, domain.ActionUpdatePassword},
	"create_ambassador":                {domain.EntityAmbassador, domain.ActionCreate},
	"update_ambassador":                {domain.EntityAmbassador, domain.ActionUpdate},
	"delete_ambassador":                {domain.EntityAmbassador, domain.ActionDelete},
	"create_client":                    {domain.EntityClient, domain.ActionCreate},
	"update_client":                    {domain.EntityClient, domain.ActionUpdate},
	"assign_client":                    {domain.EntityClient, domain.ActionAssignAmbassador},
	"unassign_client":                  {domain.EntityClient, domain.ActionUnassignAmbassador},
	"create_commission":                {domain.EntityCommission, domain.ActionCreate},
	"update_commission":                {domain.EntityCommission, domain.ActionUpdate},
	"delete_commission":                {domain.EntityCommission, domain.ActionDelete},
	"create_appointment":               {domain.EntityAppointment, domain.ActionCreate},
	"update_appointment":               {domain.EntityAppointment, domain.ActionUpdate},
	"delete_appointment":               {domain.EntityAppointment, domain.ActionDelete},
	"create_dashboard_project":         {domain.EntityDashboardProject, domain.ActionCreate},
	"start_dashboard_configuration":    {domain.EntityDashboardProject, domain.ActionTransition},
	"configure_dashboard_source":       {domain.EntityDashboardProject, domain.ActionUpdate},
	"apply_generated_dashboard_config": {domain.EntityDashboardProject, domain.ActionTransition},
	"publish_dashboard":                {domain.EntityDashboardProject, domain.ActionTransition},
	"reset_dashboard":                  {domain.EntityDashboardProject, domain.ActionReset},
	"create_ai_thread":                 {domain.EntityAIThread, domain.ActionCreate},
	"append_ai_message":                {domain.EntityAIMessage, domain.ActionCreate},
}
