// Package memory provides the transactional in-memory snapshot store that
// every durable backend wraps.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"opsdesk/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// ErrRevisionConflict is returned by persisters when another writer stored a
// newer revision since this process loaded its snapshot.
var ErrRevisionConflict = errors.New("snapshot revision conflict: another writer persisted first")

// Persister durably writes a full snapshot. It is called with the store lock
// held, after rules pass and before the new state becomes visible.
type Persister interface {
	Persist(ctx context.Context, snapshot domain.Snapshot) error
}

// Reloader is implemented by persisters that can read the durable state back.
// The store calls it after ErrRevisionConflict so the next transaction starts
// from the winning writer's snapshot. Corrupt holds decode failures that were
// replaced with empty collections.
type Reloader interface {
	Reload(ctx context.Context) (snapshot domain.Snapshot, corrupt []error, err error)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, snapshot domain.Snapshot) error

// Persist implements Persister.
func (f PersisterFunc) Persist(ctx context.Context, snapshot domain.Snapshot) error {
	return f(ctx, snapshot)
}

// Option customizes a Store.
type Option func(*Store)

// WithRulesEngine sets the rules evaluated before commit.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(s *Store) { s.engine = engine }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.idFn = fn
		}
	}
}

// WithPersister installs the durable write hook.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithCorruptionHandler receives errors for persisted data that could not be
// decoded and was replaced with empty collections.
func WithCorruptionHandler(fn func(error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.onCorrupt = fn
		}
	}
}

// Store is an in-memory implementation of domain.PersistentStore.
type Store struct {
	mu        sync.RWMutex
	state     domain.Snapshot
	engine    *domain.RulesEngine
	nowFn     func() time.Time
	idFn      func() string
	persister Persister
	onCorrupt func(error)
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state:     domain.NewSnapshot(),
		nowFn:     func() time.Time { return time.Now().UTC() },
		idFn:      uuid.NewString,
		onCorrupt: func(error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPersister installs a durable write hook after construction. Backends use
// it once their connection is established.
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persister = p
}

// ReportCorruption forwards a load failure to the configured handler.
func (s *Store) ReportCorruption(err error) {
	if err != nil {
		s.onCorrupt(err)
	}
}

// ExportState returns a deep copy of the current snapshot.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ImportState replaces the current state without persisting it.
func (s *Store) ImportState(snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = domain.MigrateSnapshot(snapshot).Clone()
}

// RulesEngine exposes the configured rules engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	return s.engine
}

// NowFunc exposes the store clock.
func (s *Store) NowFunc() func() time.Time {
	return s.nowFn
}

// Close releases resources. The in-memory store holds none.
func (s *Store) Close() error { return nil }

// RunInTransaction applies fn to a cloned snapshot. The clone replaces the
// live state only when fn succeeds, no blocking rule fires and the persister
// (if any) accepts the write.
func (s *Store) RunInTransaction(ctx context.Context, actor domain.Actor, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.Clone(),
		now:   s.nowFn(),
		actor: actor,
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) == 0 {
		return result, nil
	}
	if s.persister != nil {
		next := tx.state
		next.Revision = s.state.Revision + 1
		if err := s.persister.Persist(ctx, next); err != nil {
			if errors.Is(err, ErrRevisionConflict) {
				err = s.reloadAfterConflict(ctx, err)
			}
			return result, domain.Persistence("persist snapshot", err)
		}
		tx.state = next
	} else {
		tx.state.Revision = s.state.Revision + 1
	}

	s.state = tx.state
	return result, nil
}

// reloadAfterConflict replaces the live state with the persisted one. The
// caller holds s.mu. The conflict is returned either way so the failed
// transaction is still reported.
func (s *Store) reloadAfterConflict(ctx context.Context, conflict error) error {
	r, ok := s.persister.(Reloader)
	if !ok {
		return conflict
	}
	snapshot, corrupt, err := r.Reload(ctx)
	if err != nil {
		return errors.Join(conflict, fmt.Errorf("reload after conflict: %w", err))
	}
	for _, cerr := range corrupt {
		s.onCorrupt(cerr)
	}
	s.state = domain.MigrateSnapshot(snapshot).Clone()
	return conflict
}

// View runs fn against a read-only copy of the current state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.Clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

type transactionView struct {
	state *domain.Snapshot
}

func newTransactionView(state *domain.Snapshot) domain.TransactionView {
	return transactionView{state: state}
}

func sortedValues[T any](m map[string]T, cloneFn func(T) T, less func(a, b T) bool) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, cloneFn(v))
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byCreation(a, b domain.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func identity[T any](v T) T { return v }

func (v transactionView) ListUsers() []domain.User {
	return sortedValues(v.state.Users, identity[domain.User], func(a, b domain.User) bool { return byCreation(a.Base, b.Base) })
}

func (v transactionView) ListAmbassadors() []domain.Ambassador {
	return sortedValues(v.state.Ambassadors, domain.CloneAmbassador, func(a, b domain.Ambassador) bool { return byCreation(a.Base, b.Base) })
}

func (v transactionView) ListClients() []domain.Client {
	return sortedValues(v.state.Clients, domain.CloneClient, func(a, b domain.Client) bool { return byCreation(a.Base, b.Base) })
}

func (v transactionView) ListCommissions() []domain.Commission {
	return sortedValues(v.state.Commissions, identity[domain.Commission], func(a, b domain.Commission) bool { return byCreation(a.Base, b.Base) })
}

func (v transactionView) ListAppointments() []domain.Appointment {
	return sortedValues(v.state.Appointments, domain.CloneAppointment, func(a, b domain.Appointment) bool {
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		return a.ID < b.ID
	})
}

func (v transactionView) ListDashboardProjects() []domain.DashboardProject {
	return sortedValues(v.state.DashboardProjects, domain.CloneDashboardProject, func(a, b domain.DashboardProject) bool { return byCreation(a.Base, b.Base) })
}

func (v transactionView) ListAIMessages(threadID string) []domain.AIMessage {
	out := make([]domain.AIMessage, 0)
	for _, msg := range v.state.AIMessages {
		if msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (v transactionView) ListClientUserLinks() []domain.ClientUserLink {
	return sortedValues(v.state.ClientUsers, identity[domain.ClientUserLink], func(a, b domain.ClientUserLink) bool { return a.UserID < b.UserID })
}

func (v transactionView) ListAuditLogs(filter domain.AuditFilter) []domain.AuditLog {
	return domain.FilterAuditLogs(v.state.AuditLogs, filter)
}

func (v transactionView) FindUser(id string) (domain.User, bool) {
	u, ok := v.state.Users[id]
	return u, ok
}

func (v transactionView) FindUserByEmail(email string) (domain.User, bool) {
	return findUserByEmail(v.state, email)
}

func findUserByEmail(state *domain.Snapshot, email string) (domain.User, bool) {
	normalized := domain.NormalizeEmail(email)
	for _, u := range state.Users {
		if domain.NormalizeEmail(u.Email) == normalized {
			return u, true
		}
	}
	return domain.User{}, false
}

func (v transactionView) FindAmbassador(id string) (domain.Ambassador, bool) {
	a, ok := v.state.Ambassadors[id]
	return domain.CloneAmbassador(a), ok
}

func (v transactionView) FindClient(id string) (domain.Client, bool) {
	c, ok := v.state.Clients[id]
	return domain.CloneClient(c), ok
}

func (v transactionView) FindCommission(id string) (domain.Commission, bool) {
	c, ok := v.state.Commissions[id]
	return c, ok
}

func (v transactionView) FindAppointment(id string) (domain.Appointment, bool) {
	a, ok := v.state.Appointments[id]
	return domain.CloneAppointment(a), ok
}

func (v transactionView) FindDashboardProject(id string) (domain.DashboardProject, bool) {
	p, ok := v.state.DashboardProjects[id]
	return domain.CloneDashboardProject(p), ok
}

func (v transactionView) FindDashboardProjectByClient(clientID string) (domain.DashboardProject, bool) {
	for _, p := range v.state.DashboardProjects {
		if p.ClientID == clientID {
			return domain.CloneDashboardProject(p), true
		}
	}
	return domain.DashboardProject{}, false
}

func (v transactionView) FindAIThread(id string) (domain.AIThread, bool) {
	t, ok := v.state.AIThreads[id]
	return t, ok
}

func (v transactionView) FindClientUserLink(userID string) (domain.ClientUserLink, bool) {
	l, ok := v.state.ClientUsers[userID]
	return l, ok
}
