package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"opsdesk/pkg/domain"
)

func TestCreateUserRejectsDuplicateEmailCaseInsensitive(t *testing.T) {
	store := newTestStore()
	seedAmbassador(t, store, "Amy@Example.com", domain.AmbassadorActive)
	before := auditCount(store)
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{Email: "  amy@EXAMPLE.com ", Role: domain.RoleAdmin})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if auditCount(store) != before {
		t.Fatalf("expected no audit entries on failure")
	}
}

func TestAuditEntriesArePrependedWithActor(t *testing.T) {
	store := newTestStore()
	amb := seedAmbassador(t, store, "a@example.com", domain.AmbassadorActive)
	logs := store.ExportState().AuditLogs
	if len(logs) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(logs))
	}
	if logs[0].EntityType != domain.EntityAmbassador || logs[1].EntityType != domain.EntityUser {
		t.Fatalf("expected most recent first, got %s then %s", logs[0].EntityType, logs[1].EntityType)
	}
	if logs[0].ActorID != testActor.UserID || logs[0].ActorRole != domain.RoleAdmin {
		t.Fatalf("expected actor recorded, got %+v", logs[0])
	}
	if logs[0].Before.Defined() || !logs[0].After.Defined() {
		t.Fatalf("expected create entry to carry only after state")
	}
	var after domain.Ambassador
	if _, err := logs[0].After.Decode(&after); err != nil {
		t.Fatalf("decode after: %v", err)
	}
	if after.ID != amb.ID || after.Status != domain.AmbassadorActive {
		t.Fatalf("unexpected after snapshot %+v", after)
	}
	if strings.Contains(string(logs[1].After.Raw()), `"hash"`) {
		t.Fatalf("expected password hash redacted in audit payload")
	}
}

func TestRotateUserPasswordAudited(t *testing.T) {
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return clock }), WithIDGenerator(sequentialIDs()))
	amb := seedAmbassador(t, store, "p@example.com", domain.AmbassadorActive)
	clock = clock.Add(time.Hour)
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.RotateUserPassword(amb.UserID, "new-hash")
		return err
	})
	state := store.ExportState()
	if state.Users[amb.UserID].PasswordHash != "new-hash" {
		t.Fatalf("expected hash rotated")
	}
	if !state.Users[amb.UserID].PasswordChangedAt.Equal(clock) {
		t.Fatalf("expected password_changed_at updated")
	}
	if state.AuditLogs[0].Action != domain.ActionUpdatePassword {
		t.Fatalf("expected UPDATE_PASSWORD entry, got %s", state.AuditLogs[0].Action)
	}
}

func TestDeleteAmbassadorCascades(t *testing.T) {
	store := newTestStore()
	amb := seedAmbassador(t, store, "c@example.com", domain.AmbassadorActive)
	other := seedAmbassador(t, store, "d@example.com", domain.AmbassadorActive)
	var assigned []string
	for _, name := range []string{"one", "two", "three"} {
		client := seedClient(t, store, name)
		mustRun(t, store, func(tx domain.Transaction) error {
			_, err := tx.AssignClient(client.ID, &amb.ID)
			return err
		})
		assigned = append(assigned, client.ID)
	}
	kept := seedClient(t, store, "kept")
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.AssignClient(kept.ID, &other.ID)
		return err
	})

	before := auditCount(store)
	mustRun(t, store, func(tx domain.Transaction) error { return tx.DeleteAmbassador(amb.ID) })

	state := store.ExportState()
	if _, ok := state.Ambassadors[amb.ID]; ok {
		t.Fatalf("expected ambassador deleted")
	}
	if _, ok := state.Users[amb.UserID]; ok {
		t.Fatalf("expected owning user deleted")
	}
	for _, id := range assigned {
		if state.Clients[id].AmbassadorID != nil {
			t.Fatalf("expected client %s unassigned", id)
		}
	}
	if got := state.Clients[kept.ID].AmbassadorID; got == nil || *got != other.ID {
		t.Fatalf("expected unrelated assignment untouched")
	}
	if got := auditCount(store) - before; got != 2 {
		t.Fatalf("expected exactly 2 audit entries, got %d", got)
	}
	if state.AuditLogs[0].EntityType != domain.EntityUser || state.AuditLogs[1].EntityType != domain.EntityAmbassador {
		t.Fatalf("expected DELETE ambassador then DELETE user")
	}
}

func TestAssignClientRequiresActiveAmbassador(t *testing.T) {
	store := newTestStore()
	inactive := seedAmbassador(t, store, "i@example.com", domain.AmbassadorInactive)
	client := seedClient(t, store, "Acme")
	missing := "ghost"
	for _, id := range []*string{&inactive.ID, &missing} {
		_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
			_, err := tx.AssignClient(client.ID, id)
			return err
		})
		if !errors.Is(err, domain.ErrInvalidReference) {
			t.Fatalf("expected invalid reference for %s, got %v", *id, err)
		}
	}
	mustRun(t, store, func(tx domain.Transaction) error {
		updated, err := tx.AssignClient(client.ID, nil)
		if err != nil {
			return err
		}
		if updated.AmbassadorID != nil {
			t.Fatalf("expected unassigned client")
		}
		return nil
	})
	if store.ExportState().AuditLogs[0].Action != domain.ActionUnassignAmbassador {
		t.Fatalf("expected UNASSIGN_AMBASSADOR entry")
	}
}

func TestUpdateClientKeepsAssignment(t *testing.T) {
	store := newTestStore()
	amb := seedAmbassador(t, store, "k@example.com", domain.AmbassadorActive)
	client := seedClient(t, store, "Acme")
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.AssignClient(client.ID, &amb.ID)
		return err
	})
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdateClient(client.ID, func(c *domain.Client) error {
			c.Name = "Acme Ltd"
			c.AmbassadorID = nil
			return nil
		})
		return err
	})
	got := store.ExportState().Clients[client.ID]
	if got.Name != "Acme Ltd" || got.AmbassadorID == nil {
		t.Fatalf("expected rename without touching assignment, got %+v", got)
	}
}

func TestAppointmentWindowValidated(t *testing.T) {
	store := newTestStore()
	amb := seedAmbassador(t, store, "ap@example.com", domain.AmbassadorActive)
	start := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	before := auditCount(store)
	for _, end := range []time.Time{start, start.Add(-time.Minute)} {
		_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
			_, err := tx.CreateAppointment(domain.Appointment{AmbassadorID: amb.ID, Title: "Kickoff", StartAt: start, EndAt: end})
			return err
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	}
	if auditCount(store) != before {
		t.Fatalf("expected no audit entries for rejected appointments")
	}

	var appt domain.Appointment
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		appt, err = tx.CreateAppointment(domain.Appointment{AmbassadorID: amb.ID, Title: "Kickoff", StartAt: start, EndAt: start.Add(time.Hour)})
		return err
	})
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.UpdateAppointment(appt.ID, func(a *domain.Appointment) error {
			a.EndAt = a.StartAt
			return nil
		})
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected update validation error, got %v", err)
	}
	if got := store.ExportState().Appointments[appt.ID]; !got.EndAt.Equal(start.Add(time.Hour)) {
		t.Fatalf("expected appointment unchanged after rejected update")
	}
	mustRun(t, store, func(tx domain.Transaction) error { return tx.DeleteAppointment(appt.ID) })
	if _, ok := store.ExportState().Appointments[appt.ID]; ok {
		t.Fatalf("expected appointment deleted")
	}
}

func TestCommissionLifecycle(t *testing.T) {
	store := newTestStore()
	amb := seedAmbassador(t, store, "m@example.com", domain.AmbassadorActive)
	client := seedClient(t, store, "Acme")
	var commission domain.Commission
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		commission, err = tx.CreateCommission(domain.Commission{AmbassadorID: amb.ID, ClientID: client.ID, AmountCents: -2500})
		return err
	})
	if commission.Status != domain.CommissionPending || !commission.IsDeduction() {
		t.Fatalf("unexpected commission %+v", commission)
	}
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdateCommission(commission.ID, func(c *domain.Commission) error {
			c.Status = domain.CommissionPaid
			return nil
		})
		return err
	})
	mustRun(t, store, func(tx domain.Transaction) error { return tx.DeleteCommission(commission.ID) })
	logs := store.ExportState().AuditLogs
	if logs[0].Action != domain.ActionDelete || logs[1].Action != domain.ActionUpdate || logs[2].Action != domain.ActionCreate {
		t.Fatalf("unexpected audit trail %s %s %s", logs[0].Action, logs[1].Action, logs[2].Action)
	}
	if logs[0].After.Defined() || !logs[0].Before.Defined() {
		t.Fatalf("expected delete entry to carry only before state")
	}
}

func TestDashboardProjectTransitions(t *testing.T) {
	store := newTestStore()
	client := seedClient(t, store, "Acme")
	var project domain.DashboardProject
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		project, err = tx.CreateDashboardProject(domain.DashboardProject{ClientID: client.ID})
		return err
	})
	if project.Status != domain.DashboardNotStarted {
		t.Fatalf("expected not_started, got %s", project.Status)
	}
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.CreateDashboardProject(domain.DashboardProject{ClientID: client.ID})
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected one project per client, got %v", err)
	}

	advance := func(to domain.DashboardStatus) error {
		_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
			_, err := tx.TransitionDashboardProject(project.ID, to)
			return err
		})
		return err
	}
	if err := advance(domain.DashboardDraft); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected skip to draft rejected, got %v", err)
	}
	for _, to := range []domain.DashboardStatus{domain.DashboardConfiguring, domain.DashboardDraft, domain.DashboardReady} {
		if err := advance(to); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdateDashboardProject(project.ID, func(p *domain.DashboardProject) error {
			p.Status = domain.DashboardNotStarted
			p.KPIs = []domain.KPIRule{{ID: "k"}}
			return nil
		})
		return err
	})
	if got := store.ExportState().DashboardProjects[project.ID]; got.Status != domain.DashboardReady || len(got.KPIs) != 1 {
		t.Fatalf("expected update to keep status, got %+v", got)
	}
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.ResetDashboardProject(project.ID)
		return err
	})
	if got := store.ExportState().DashboardProjects[project.ID].Status; got != domain.DashboardConfiguring {
		t.Fatalf("expected reset to configuring, got %s", got)
	}
	_, err = store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.ResetDashboardProject(project.ID)
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected reset from configuring rejected, got %v", err)
	}
}

func TestAIMessagesOrderedBySequence(t *testing.T) {
	store := newTestStore()
	client := seedClient(t, store, "Acme")
	var thread domain.AIThread
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		thread, err = tx.CreateAIThread(domain.AIThread{ClientID: client.ID, Title: "setup"})
		if err != nil {
			return err
		}
		for _, msg := range []domain.AIMessage{
			{ThreadID: thread.ID, Role: domain.MessageSystem, Content: "s"},
			{ThreadID: thread.ID, Role: domain.MessageUser, Content: "u"},
			{ThreadID: thread.ID, Role: domain.MessageAssistant, Content: "a"},
		} {
			if _, err := tx.AppendAIMessage(msg); err != nil {
				return err
			}
		}
		return nil
	})
	var contents []string
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		for _, m := range v.ListAIMessages(thread.ID) {
			contents = append(contents, m.Content)
		}
		return nil
	})
	if strings.Join(contents, "") != "sua" {
		t.Fatalf("expected messages in append order, got %v", contents)
	}
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.AppendAIMessage(domain.AIMessage{ThreadID: thread.ID, Role: "robot"})
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown role rejected, got %v", err)
	}
}

func TestLinkClientUser(t *testing.T) {
	store := newTestStore()
	client := seedClient(t, store, "Acme")
	var user domain.User
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		user, err = tx.CreateUser(domain.User{Email: "cu@example.com", PasswordHash: "h", Role: domain.RoleClientUser})
		if err != nil {
			return err
		}
		_, err = tx.LinkClientUser(user.ID, client.ID)
		return err
	})
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.LinkClientUser(user.ID, client.ID)
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected second link rejected, got %v", err)
	}
	amb := seedAmbassador(t, store, "not-client@example.com", domain.AmbassadorActive)
	_, err = store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		_, err := tx.LinkClientUser(amb.UserID, client.ID)
		return err
	})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected ambassador user link rejected, got %v", err)
	}
	mustRun(t, store, func(tx domain.Transaction) error { return tx.DeleteUser(user.ID) })
	if _, ok := store.ExportState().ClientUsers[user.ID]; ok {
		t.Fatalf("expected link removed with user")
	}
}

func TestDeleteUserOwningAmbassadorRejected(t *testing.T) {
	store := newTestStore()
	amb := seedAmbassador(t, store, "own@example.com", domain.AmbassadorActive)
	_, err := store.RunInTransaction(context.Background(), testActor, func(tx domain.Transaction) error {
		return tx.DeleteUser(amb.UserID)
	})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
}

func TestAuditFilterOnView(t *testing.T) {
	store := newTestStore()
	seedClient(t, store, "a")
	b := seedClient(t, store, "b")
	seedAmbassador(t, store, "f@example.com", domain.AmbassadorActive)
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		clients := v.ListAuditLogs(domain.AuditFilter{EntityType: domain.EntityClient})
		if len(clients) != 2 {
			t.Fatalf("expected 2 client entries, got %d", len(clients))
		}
		one := v.ListAuditLogs(domain.AuditFilter{EntityID: b.ID})
		if len(one) != 1 || one[0].EntityID != b.ID {
			t.Fatalf("expected entry for %s", b.ID)
		}
		limited := v.ListAuditLogs(domain.AuditFilter{Limit: 1})
		if len(limited) != 1 || limited[0].EntityType != domain.EntityAmbassador {
			t.Fatalf("expected newest entry first")
		}
		return nil
	})
}
