package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"opsdesk/pkg/domain"
)

var adminActor = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}

// strPtr is a lightweight helper for pointer fields in core package tests.
func strPtr(v string) *string {
	return &v
}

func newTestService(opts ...Option) *Service {
	base := []Option{WithBcryptCost(bcrypt.MinCost)}
	return NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...)
}

func mustAmbassador(t *testing.T, svc *Service, name, email string) domain.Ambassador {
	t.Helper()
	amb, _, err := svc.CreateAmbassador(context.Background(), adminActor, NewAmbassador{
		Name:     name,
		Email:    email,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("create ambassador %s: %v", email, err)
	}
	return amb
}

func mustClient(t *testing.T, svc *Service, name string, ambassadorID *string) domain.Client {
	t.Helper()
	client, _, err := svc.CreateClient(context.Background(), adminActor, domain.Client{Name: name, AmbassadorID: ambassadorID})
	if err != nil {
		t.Fatalf("create client %s: %v", name, err)
	}
	return client
}

func auditCount(t *testing.T, svc *Service) int {
	t.Helper()
	logs, err := svc.ListAuditLogs(context.Background(), domain.AuditFilter{})
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	return len(logs)
}

type auditRecorderStub struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *auditRecorderStub) Record(_ context.Context, entry AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

type metricCall struct {
	operation string
	success   bool
	duration  time.Duration
}

type metricsRecorderStub struct {
	calls []metricCall
}

func (m *metricsRecorderStub) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	m.calls = append(m.calls, metricCall{operation: operation, success: success, duration: duration})
}

type tracerStub struct {
	spans []*spanStub
}

type spanStub struct {
	operation string
	err       error
	ended     int
}

func (t *tracerStub) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &spanStub{operation: operation}
	t.spans = append(t.spans, span)
	return ctx, span
}

func (s *spanStub) End(err error) {
	s.err = err
	s.ended++
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type loggerStub struct {
	entries []logEntry
}

func (l *loggerStub) log(level, msg string, args []any) {
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *loggerStub) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *loggerStub) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *loggerStub) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *loggerStub) Error(msg string, args ...any) { l.log("error", msg, args) }

func (l *loggerStub) count(level string) int {
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}
