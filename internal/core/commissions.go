package core

import (
	"context"

	"opsdesk/pkg/domain"
)

func validateCommission(c domain.Commission) error {
	switch c.Status {
	case "", domain.CommissionPending, domain.CommissionPaid, domain.CommissionReversed:
	default:
		return domain.Validation(domain.EntityCommission, "unknown status %q", c.Status)
	}
	if !c.PeriodStart.IsZero() && !c.PeriodEnd.IsZero() && c.PeriodEnd.Before(c.PeriodStart) {
		return domain.Validation(domain.EntityCommission, "period_end must not precede period_start")
	}
	return nil
}

// CreateCommission records a signed commission line. Negative amounts are
// deductions.
func (s *Service) CreateCommission(ctx context.Context, actor domain.Actor, c domain.Commission) (domain.Commission, domain.Result, error) {
	var created domain.Commission
	var res domain.Result
	err := s.run(ctx, "create_commission", actor, func(ctx context.Context) (string, error) {
		if err := validateCommission(c); err != nil {
			return "", err
		}
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			created, err = tx.CreateCommission(c)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateCommission mutates a commission and revalidates it.
func (s *Service) UpdateCommission(ctx context.Context, actor domain.Actor, id string, mutator func(*domain.Commission) error) (domain.Commission, domain.Result, error) {
	var updated domain.Commission
	var res domain.Result
	err := s.run(ctx, "update_commission", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateCommission(id, func(c *domain.Commission) error {
				if err := mutator(c); err != nil {
					return err
				}
				return validateCommission(*c)
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteCommission removes a commission.
func (s *Service) DeleteCommission(ctx context.Context, actor domain.Actor, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_commission", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			return tx.DeleteCommission(id)
		})
		return id, err
	})
	return res, err
}

// ListCommissions returns every commission ordered by creation.
func (s *Service) ListCommissions(ctx context.Context) ([]domain.Commission, error) {
	var out []domain.Commission
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListCommissions()
		return nil
	})
	return out, err
}

// PaidCommissionTotal sums the paid commissions of one ambassador in cents.
// Deductions are included, so the total can be negative.
func (s *Service) PaidCommissionTotal(ctx context.Context, ambassadorID string) (int64, error) {
	var total int64
	err := s.view(ctx, func(v TransactionView) error {
		if _, ok := v.FindAmbassador(ambassadorID); !ok {
			return domain.NotFound(domain.EntityAmbassador, ambassadorID)
		}
		for _, c := range v.ListCommissions() {
			if c.AmbassadorID == ambassadorID && c.Status == domain.CommissionPaid {
				total += c.AmountCents
			}
		}
		return nil
	})
	return total, err
}
