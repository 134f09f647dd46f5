package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"opsdesk/pkg/domain"
)

var testActor = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}

func fixedClock() func() time.Time {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return base }
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newTestStore(opts ...Option) *Store {
	base := []Option{WithClock(fixedClock()), WithIDGenerator(sequentialIDs())}
	return NewStore(append(base, opts...)...)
}

func mustRun(t *testing.T, store *Store, fn func(tx domain.Transaction) error) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), testActor, fn); err != nil {
		t.Fatalf("run transaction: %v", err)
	}
}

// seedAmbassador creates an ambassador-role user plus its ambassador.
func seedAmbassador(t *testing.T, store *Store, email string, status domain.AmbassadorStatus) domain.Ambassador {
	t.Helper()
	var amb domain.Ambassador
	mustRun(t, store, func(tx domain.Transaction) error {
		user, err := tx.CreateUser(domain.User{Email: email, PasswordHash: "hash", Role: domain.RoleAmbassador})
		if err != nil {
			return err
		}
		amb, err = tx.CreateAmbassador(domain.Ambassador{UserID: user.ID, Name: email, Status: status})
		return err
	})
	return amb
}

func seedClient(t *testing.T, store *Store, name string) domain.Client {
	t.Helper()
	var client domain.Client
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		client, err = tx.CreateClient(domain.Client{Name: name})
		return err
	})
	return client
}

func auditCount(store *Store) int {
	return len(store.ExportState().AuditLogs)
}
