package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"opsdesk/pkg/domain"
)

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := newTestStore(WithRulesEngine(domain.NewRulesEngine()))
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, testActor, func(tx domain.Transaction) error {
		if _, ok := tx.Snapshot().FindClient("missing"); ok {
			t.Fatalf("expected missing client lookup")
		}
		created, err := tx.CreateClient(domain.Client{Name: "Acme"})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		if created.Status != domain.ClientActive || created.OnboardingStatus != domain.OnboardingPending {
			t.Fatalf("expected defaults applied, got %+v", created)
		}
		if len(tx.Snapshot().ListClients()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	snapshot := store.ExportState()
	if len(snapshot.Clients) != 1 || snapshot.Revision != 1 {
		t.Fatalf("expected committed client at revision 1, got %d clients rev %d", len(snapshot.Clients), snapshot.Revision)
	}
	store.ImportState(domain.Snapshot{})
	if len(store.ExportState().Clients) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ExportState().Clients) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStoreRuleViolationDiscardsState(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := newTestStore(WithRulesEngine(engine))
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, e := tx.CreateClient(domain.Client{Name: "Fail"})
		return e
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if len(store.ExportState().Clients) != 0 || auditCount(store) != 0 {
		t.Fatalf("expected blocked transaction to leave no state")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}}, nil
}

func TestFailedTransactionLeavesNoPartialState(t *testing.T) {
	store := newTestStore()
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		if _, err := tx.CreateClient(domain.Client{Name: "first"}); err != nil {
			return err
		}
		_, err := tx.CreateCommission(domain.Commission{AmbassadorID: "nope", ClientID: "nope"})
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(store.ExportState().Clients) != 0 || auditCount(store) != 0 {
		t.Fatalf("expected no partial state after failure")
	}
}

func TestPersisterFailureDropsEffects(t *testing.T) {
	calls := 0
	failing := PersisterFunc(func(context.Context, domain.Snapshot) error {
		calls++
		return errors.New("disk full")
	})
	store := newTestStore(WithPersister(failing))
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.CreateClient(domain.Client{Name: "Acme"})
		return err
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one persist attempt, got %d", calls)
	}
	state := store.ExportState()
	if len(state.Clients) != 0 || len(state.AuditLogs) != 0 || state.Revision != 0 {
		t.Fatalf("expected in-memory effects dropped, got %+v", state)
	}
}

func TestPersisterReceivesNextRevision(t *testing.T) {
	var seen []int64
	store := newTestStore(WithPersister(PersisterFunc(func(_ context.Context, s domain.Snapshot) error {
		seen = append(seen, s.Revision)
		if len(s.AuditLogs) == 0 {
			t.Fatalf("expected audit entries in persisted snapshot")
		}
		return nil
	})))
	seedClient(t, store, "a")
	seedClient(t, store, "b")
	mustRun(t, store, func(domain.Transaction) error { return nil })
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected revisions [1 2], got %v", seen)
	}
}

func TestCorruptionHandler(t *testing.T) {
	var got error
	store := NewStore(WithCorruptionHandler(func(err error) { got = err }))
	store.ReportCorruption(nil)
	if got != nil {
		t.Fatalf("nil errors must not be reported")
	}
	store.ReportCorruption(errors.New("bad bucket"))
	if got == nil {
		t.Fatalf("expected handler to receive error")
	}
}

type reloadingPersister struct {
	persisted domain.Snapshot
	reloadErr error
	corrupt   []error
	reloads   int
}

func (p *reloadingPersister) Persist(_ context.Context, s domain.Snapshot) error {
	if s.Revision != p.persisted.Revision+1 {
		return ErrRevisionConflict
	}
	p.persisted = s.Clone()
	return nil
}

func (p *reloadingPersister) Reload(context.Context) (domain.Snapshot, []error, error) {
	p.reloads++
	if p.reloadErr != nil {
		return domain.Snapshot{}, nil, p.reloadErr
	}
	return p.persisted.Clone(), p.corrupt, nil
}

func TestRevisionConflictReloadsPersistedState(t *testing.T) {
	other := domain.NewSnapshot()
	other.Revision = 3
	other.Clients["c-other"] = domain.Client{Base: domain.Base{ID: "c-other"}, Name: "Other"}
	p := &reloadingPersister{persisted: other, corrupt: []error{errors.New("bad bucket")}}
	var reported []error
	store := newTestStore(WithPersister(p), WithCorruptionHandler(func(err error) { reported = append(reported, err) }))

	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.CreateClient(domain.Client{Name: "Mine"})
		return err
	})
	if !errors.Is(err, ErrRevisionConflict) || !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected conflict persistence error, got %v", err)
	}
	state := store.ExportState()
	if p.reloads != 1 || state.Revision != 3 || len(state.Clients) != 1 {
		t.Fatalf("expected persisted state after conflict, got reloads=%d revision=%d clients=%d", p.reloads, state.Revision, len(state.Clients))
	}
	if len(reported) != 1 {
		t.Fatalf("expected reload corruption to be reported, got %v", reported)
	}

	seedClient(t, store, "Mine")
	if got := store.ExportState(); got.Revision != 4 || len(got.Clients) != 2 {
		t.Fatalf("expected retry to commit revision 4, got revision=%d clients=%d", got.Revision, len(got.Clients))
	}
}

func TestRevisionConflictReloadFailureKeepsState(t *testing.T) {
	p := &reloadingPersister{reloadErr: errors.New("db gone")}
	p.persisted.Revision = 5
	store := newTestStore(WithPersister(p))
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.CreateClient(domain.Client{Name: "Mine"})
		return err
	})
	if !errors.Is(err, ErrRevisionConflict) || err == nil || !strings.Contains(err.Error(), "db gone") {
		t.Fatalf("expected conflict joined with reload error, got %v", err)
	}
	if state := store.ExportState(); state.Revision != 0 || len(state.Clients) != 0 {
		t.Fatalf("expected state untouched when reload fails, got %+v", state)
	}
}
