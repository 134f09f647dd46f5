package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"opsdesk/internal/infra/persistence/memory"
	"opsdesk/pkg/domain"
)

func evaluateOn(t *testing.T, snapshot domain.Snapshot, rule domain.Rule, changes []domain.Change) domain.Result {
	t.Helper()
	store := memory.NewStore()
	store.ImportState(snapshot)
	var res domain.Result
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		var err error
		res, err = rule.Evaluate(context.Background(), v, changes)
		return err
	})
	if err != nil {
		t.Fatalf("evaluate %s: %v", rule.Name(), err)
	}
	return res
}

func TestDefaultRulesEngineRegistration(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	want := []string{"referential_integrity", "unique_email", "appointment_window"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected rules %v, got %v", want, got)
	}
}

func TestReferentialIntegrityRule(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.Users["u-admin"] = domain.User{Base: domain.Base{ID: "u-admin"}, Email: "a@x.test", Role: domain.RoleAdmin}
	snap.Ambassadors["amb-1"] = domain.Ambassador{Base: domain.Base{ID: "amb-1"}, UserID: "u-admin", Status: domain.AmbassadorActive}
	snap.Ambassadors["amb-2"] = domain.Ambassador{Base: domain.Base{ID: "amb-2"}, UserID: "u-missing", Status: domain.AmbassadorActive}
	snap.Commissions["com-1"] = domain.Commission{Base: domain.Base{ID: "com-1"}, AmbassadorID: "amb-1", ClientID: "c-missing"}
	snap.DashboardProjects["dp-1"] = domain.DashboardProject{Base: domain.Base{ID: "dp-1"}, ClientID: "c-missing", Status: domain.DashboardNotStarted}

	if res := evaluateOn(t, snap, NewReferentialIntegrityRule(), nil); len(res.Violations) != 3 {
		t.Fatalf("untouched commissions must not be checked, got %+v", res.Violations)
	}
	changes := []domain.Change{{Entity: domain.EntityCommission, Action: domain.ActionUpdate, EntityID: "com-1"}}
	res := evaluateOn(t, snap, NewReferentialIntegrityRule(), changes)
	if len(res.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %+v", res.Violations)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violations")
	}
	entities := map[domain.EntityType]int{}
	for _, v := range res.Violations {
		entities[v.Entity]++
		if v.Rule != "referential_integrity" {
			t.Fatalf("unexpected rule name %s", v.Rule)
		}
	}
	if entities[domain.EntityAmbassador] != 2 || entities[domain.EntityCommission] != 1 || entities[domain.EntityDashboardProject] != 1 {
		t.Fatalf("unexpected violation spread: %v", entities)
	}

	if res := evaluateOn(t, domain.NewSnapshot(), NewReferentialIntegrityRule(), nil); len(res.Violations) != 0 {
		t.Fatalf("expected clean snapshot to pass, got %+v", res.Violations)
	}
}

func TestReferentialIntegrityRuleIgnoresUnchangedDanglingRefs(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.Clients["c-1"] = domain.Client{Base: domain.Base{ID: "c-1"}, Name: "Acme"}
	before := domain.Commission{Base: domain.Base{ID: "com-1"}, AmbassadorID: "amb-gone", ClientID: "c-1", Status: domain.CommissionPending}
	after := before
	after.Status = domain.CommissionReversed
	snap.Commissions["com-1"] = after

	changes := []domain.Change{{Entity: domain.EntityCommission, Action: domain.ActionUpdate, EntityID: "com-1", Before: before, After: after}}
	if res := evaluateOn(t, snap, NewReferentialIntegrityRule(), changes); len(res.Violations) != 0 {
		t.Fatalf("status change on history row must pass, got %+v", res.Violations)
	}

	moved := after
	moved.ClientID = "c-missing"
	snap.Commissions["com-1"] = moved
	changes[0].After = moved
	res := evaluateOn(t, snap, NewReferentialIntegrityRule(), changes)
	if len(res.Violations) != 1 || res.Violations[0].Entity != domain.EntityCommission {
		t.Fatalf("expected only the changed client ref to be flagged, got %+v", res.Violations)
	}
}

func TestUniqueEmailRule(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.Users["u1"] = domain.User{Base: domain.Base{ID: "u1"}, Email: "dup@x.test", Role: domain.RoleAdmin}
	snap.Users["u2"] = domain.User{Base: domain.Base{ID: "u2"}, Email: "DUP@x.test ", Role: domain.RoleAdmin}
	snap.Users["u3"] = domain.User{Base: domain.Base{ID: "u3"}, Email: "other@x.test", Role: domain.RoleAdmin}

	res := evaluateOn(t, snap, NewUniqueEmailRule(), nil)
	if len(res.Violations) != 1 || res.Violations[0].Entity != domain.EntityUser {
		t.Fatalf("expected one duplicate email violation, got %+v", res.Violations)
	}
}

func TestAppointmentWindowRuleChecksChangedAppointments(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	snap := domain.NewSnapshot()
	snap.Appointments["bad"] = domain.Appointment{Base: domain.Base{ID: "bad"}, StartAt: start, EndAt: start}
	snap.Appointments["good"] = domain.Appointment{Base: domain.Base{ID: "good"}, StartAt: start, EndAt: start.Add(time.Hour)}
	rule := NewAppointmentWindowRule()

	if res := evaluateOn(t, snap, rule, nil); len(res.Violations) != 0 {
		t.Fatalf("untouched appointments must not be checked")
	}
	changes := []domain.Change{
		{Entity: domain.EntityAppointment, Action: domain.ActionUpdate, EntityID: "bad"},
		{Entity: domain.EntityAppointment, Action: domain.ActionCreate, EntityID: "good"},
		{Entity: domain.EntityAppointment, Action: domain.ActionDelete, EntityID: "gone"},
	}
	res := evaluateOn(t, snap, rule, changes)
	if len(res.Violations) != 1 || res.Violations[0].EntityID != "bad" {
		t.Fatalf("expected violation for bad appointment only, got %+v", res.Violations)
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock, Message: "frozen"}}}, nil
}

func TestBlockingRuleRejectsMutation(t *testing.T) {
	engine := NewDefaultRulesEngine()
	engine.Register(blockAllRule{})
	logger := &loggerStub{}
	svc := NewInMemoryService(engine, WithBcryptCost(bcrypt.MinCost), WithLogger(logger))

	_, _, err := svc.CreateClient(context.Background(), adminActor, domain.Client{Name: "Acme"})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected rule violation to classify as validation")
	}
	if clients, _ := svc.ListClients(context.Background()); len(clients) != 0 {
		t.Fatalf("blocked transaction must be discarded")
	}
	if logger.count("warn") != 1 {
		t.Fatalf("expected blocked operation logged at warn, got %+v", logger.entries)
	}
}
