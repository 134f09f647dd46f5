package core

import (
	"context"

	"opsdesk/pkg/domain"
)

// ListAuditLogs returns persisted audit entries most recent first.
func (s *Service) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListAuditLogs(filter)
		return nil
	})
	return out, err
}
