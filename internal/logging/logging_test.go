package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"opsdesk/internal/config"
	"opsdesk/internal/core"
	"opsdesk/pkg/domain"
)

func TestNewHonoursLevelAndFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := New(config.Log{Level: "warn", Format: format})
		if err != nil {
			t.Fatalf("new %s logger: %v", format, err)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Fatalf("%s logger: info must be disabled at warn level", format)
		}
		if !l.Core().Enabled(zapcore.ErrorLevel) {
			t.Fatalf("%s logger: error must be enabled", format)
		}
	}
	if _, err := New(config.Log{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestLoggerPassesKeyValues(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	l := NewLogger(zap.New(obsCore))

	l.Debug("d", "k", 1)
	l.Info("i", "k", 2)
	l.Warn("w", "k", 3)
	l.Error("e", "err", errors.New("boom"))

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	levels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, entry := range entries {
		if entry.Level != levels[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, levels[i], entry.Level)
		}
	}
	if got := entries[1].ContextMap()["k"]; got != int64(2) {
		t.Fatalf("expected k=2, got %v (%T)", got, got)
	}
	if got := entries[3].ContextMap()["err"]; got != "boom" {
		t.Fatalf("expected err=boom, got %v", got)
	}
}

func TestNewLoggerNil(t *testing.T) {
	NewLogger(nil).Info("dropped")
	NewAuditRecorder(nil).Record(context.Background(), core.AuditEntry{})
}

func TestAuditRecorderLevelsAndFields(t *testing.T) {
	obsCore, logs := observer.New(zapcore.InfoLevel)
	rec := NewAuditRecorder(zap.New(obsCore))
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	actor := domain.Actor{UserID: "u1", Role: domain.RoleAdmin}

	rec.Record(context.Background(), core.AuditEntry{
		Operation: "create_client", Entity: domain.EntityClient, Action: domain.ActionCreate,
		EntityID: "c1", Actor: actor, Status: core.AuditStatusSuccess, Duration: time.Millisecond, Timestamp: at,
	})
	rec.Record(context.Background(), core.AuditEntry{
		Operation: "create_client", Entity: domain.EntityClient, Action: domain.ActionCreate,
		Status: core.AuditStatusError, Error: "validation: client: name is required", Timestamp: at,
	})

	audited := logs.FilterField(zap.Bool("audit", true)).All()
	if len(audited) != 2 {
		t.Fatalf("expected 2 audit lines, got %d", len(audited))
	}
	ok, failed := audited[0], audited[1]
	if ok.Level != zapcore.InfoLevel || failed.Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %s/%s", ok.Level, failed.Level)
	}
	fields := ok.ContextMap()
	if fields["entity_id"] != "c1" || fields["actor_id"] != "u1" || fields["action"] != "CREATE" {
		t.Fatalf("unexpected success fields: %v", fields)
	}
	if _, has := failed.ContextMap()["entity_id"]; has {
		t.Fatalf("empty entity id must be omitted")
	}
	if failed.ContextMap()["error"] != "validation: client: name is required" {
		t.Fatalf("expected error field, got %v", failed.ContextMap())
	}
}

func TestAuditRecorderWiredIntoService(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	zl := zap.New(obsCore)
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(),
		core.WithLogger(NewLogger(zl)),
		core.WithAuditRecorder(NewAuditRecorder(zl)),
	)
	if _, _, err := svc.CreateClient(context.Background(), domain.SystemActor, domain.Client{Name: "Acme"}); err != nil {
		t.Fatalf("create client: %v", err)
	}
	if n := logs.FilterField(zap.Bool("audit", true)).FilterMessage("audit event").Len(); n != 1 {
		t.Fatalf("expected one audit line, got %d", n)
	}
	if n := logs.FilterMessage("operation completed").Len(); n != 1 {
		t.Fatalf("expected one debug completion line, got %d", n)
	}
}
