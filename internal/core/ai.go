package core

import (
	"context"
	"strings"

	"opsdesk/pkg/domain"
)

// CreateAIThread opens a conversation log for a client.
func (s *Service) CreateAIThread(ctx context.Context, actor domain.Actor, clientID, title string) (domain.AIThread, domain.Result, error) {
	var created domain.AIThread
	var res domain.Result
	err := s.run(ctx, "create_ai_thread", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			created, err = tx.CreateAIThread(domain.AIThread{ClientID: clientID, Title: strings.TrimSpace(title)})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// AppendAIMessage adds a message at the end of a thread.
func (s *Service) AppendAIMessage(ctx context.Context, actor domain.Actor, threadID string, role domain.MessageRole, content string) (domain.AIMessage, domain.Result, error) {
	var created domain.AIMessage
	var res domain.Result
	err := s.run(ctx, "append_ai_message", actor, func(ctx context.Context) (string, error) {
		if strings.TrimSpace(content) == "" {
			return "", domain.Validation(domain.EntityAIMessage, "content is required")
		}
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			created, err = tx.AppendAIMessage(domain.AIMessage{ThreadID: threadID, Role: role, Content: content})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// ListAIMessages returns a thread's messages in sequence order.
func (s *Service) ListAIMessages(ctx context.Context, threadID string) ([]domain.AIMessage, error) {
	var out []domain.AIMessage
	err := s.view(ctx, func(v TransactionView) error {
		if _, ok := v.FindAIThread(threadID); !ok {
			return domain.NotFound(domain.EntityAIThread, threadID)
		}
		out = v.ListAIMessages(threadID)
		return nil
	})
	return out, err
}
