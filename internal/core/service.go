// Package core hosts the opsdesk service layer: validated, audited and
// observed operations over a domain.PersistentStore.
package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"opsdesk/internal/infra/persistence/memory"
	"opsdesk/pkg/domain"
)

type (
	// Transaction is the store transaction handed to service closures.
	Transaction = domain.Transaction
	// TransactionView is the read-only snapshot view.
	TransactionView = domain.TransactionView
	// PersistentStore is the repository contract the service runs on.
	PersistentStore = domain.PersistentStore
)

// Service exposes the entity operations of the platform.
type Service struct {
	store      PersistentStore
	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditRecorder
	bcryptCost int

	decoyOnce sync.Once
	decoy     []byte
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for operational audit timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder sets the operational audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithBcryptCost sets the password hashing cost. Out of range values fall
// back to bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		logger:     noopLogger{},
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		audit:      noopAudit{},
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh memory store guarded by
// engine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(memory.WithRulesEngine(engine)), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps one service operation with tracing, metrics, logging and the
// operational audit entry. fn returns the id of the affected entity.
func (s *Service) run(ctx context.Context, op string, actor domain.Actor, fn func(ctx context.Context) (string, error)) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	entityID, err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logFailure(op, entityID, err)
		s.recordAudit(ctx, op, entityID, actor, duration, err)
		return err
	}
	s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAudit(ctx, op, entityID, actor, duration, nil)
	return nil
}

func (s *Service) logFailure(op, entityID string, err error) {
	var rv domain.RuleViolationError
	switch kind := domain.KindOf(err); {
	case errors.As(err, &rv):
		s.logger.Warn("operation blocked by rules", "operation", op, "entity_id", entityID, "error", err)
	case kind == domain.KindPersistence || kind == "":
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
	default:
		s.logger.Info("operation rejected", "operation", op, "entity_id", entityID, "kind", string(kind), "error", err)
	}
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, actor domain.Actor, duration time.Duration, err error) {
	meta, ok := operations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     actor,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// mutate runs fn in a store transaction for actor. The rules result is
// returned alongside any error.
func (s *Service) mutate(ctx context.Context, actor domain.Actor, fn func(Transaction) error) (domain.Result, error) {
	return s.store.RunInTransaction(ctx, actor, fn)
}

// view runs fn against a read-only snapshot.
func (s *Service) view(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}
