package core

import (
	"context"
	"errors"
	"testing"

	"opsdesk/pkg/domain"
)

func TestAIThreadMessagesAreSequenced(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	client := mustClient(t, svc, "Acme", nil)

	thread, _, err := svc.CreateAIThread(ctx, adminActor, client.ID, " Dashboard setup ")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if thread.Title != "Dashboard setup" {
		t.Fatalf("expected trimmed title, got %q", thread.Title)
	}
	turns := []struct {
		role    domain.MessageRole
		content string
	}{
		{domain.MessageSystem, "You configure dashboards."},
		{domain.MessageUser, "Track weekly revenue."},
		{domain.MessageAssistant, "Added a revenue KPI."},
	}
	for _, turn := range turns {
		if _, _, err := svc.AppendAIMessage(ctx, adminActor, thread.ID, turn.role, turn.content); err != nil {
			t.Fatalf("append %s: %v", turn.role, err)
		}
	}
	msgs, err := svc.ListAIMessages(ctx, thread.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != len(turns) {
		t.Fatalf("expected %d messages, got %d", len(turns), len(msgs))
	}
	for i, msg := range msgs {
		if msg.Sequence != i || msg.Role != turns[i].role || msg.Content != turns[i].content {
			t.Fatalf("message %d out of order: %+v", i, msg)
		}
	}
}

func TestAIThreadValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	if _, _, err := svc.CreateAIThread(ctx, adminActor, "ghost", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found client, got %v", err)
	}
	client := mustClient(t, svc, "Acme", nil)
	thread, _, err := svc.CreateAIThread(ctx, adminActor, client.ID, "x")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if _, _, err := svc.AppendAIMessage(ctx, adminActor, thread.ID, "tool", "hi"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown role rejection, got %v", err)
	}
	if _, _, err := svc.AppendAIMessage(ctx, adminActor, thread.ID, domain.MessageUser, "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected empty content rejection, got %v", err)
	}
	if _, _, err := svc.AppendAIMessage(ctx, adminActor, "ghost", domain.MessageUser, "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown thread rejection, got %v", err)
	}
	if _, err := svc.ListAIMessages(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown thread listing to fail, got %v", err)
	}
}
