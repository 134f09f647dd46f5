package core

import (
	"context"
	"strings"

	"opsdesk/pkg/domain"
)

// NewAmbassador is the input for CreateAmbassador.
type NewAmbassador struct {
	Name           string
	Email          string
	Password       string
	Status         domain.AmbassadorStatus
	CommissionRule *domain.CommissionRule
}

// AmbassadorUpdate carries optional changes; nil fields are left untouched.
type AmbassadorUpdate struct {
	Name           *string
	Status         *domain.AmbassadorStatus
	CommissionRule *domain.CommissionRule
	Password       *string
}

func validAmbassadorStatus(st domain.AmbassadorStatus) bool {
	return st == domain.AmbassadorActive || st == domain.AmbassadorInactive
}

func validateCommissionRule(rule *domain.CommissionRule) error {
	if rule == nil {
		return nil
	}
	return rule.Validate()
}

// CreateAmbassador creates the owning user and the ambassador atomically.
func (s *Service) CreateAmbassador(ctx context.Context, actor domain.Actor, input NewAmbassador) (domain.Ambassador, domain.Result, error) {
	var created domain.Ambassador
	var res domain.Result
	err := s.run(ctx, "create_ambassador", actor, func(ctx context.Context) (string, error) {
		name := strings.TrimSpace(input.Name)
		if name == "" {
			return "", domain.Validation(domain.EntityAmbassador, "name is required")
		}
		if err := requireEmail(domain.EntityAmbassador, input.Email); err != nil {
			return "", err
		}
		status := input.Status
		if status == "" {
			status = domain.AmbassadorActive
		}
		if !validAmbassadorStatus(status) {
			return "", domain.Validation(domain.EntityAmbassador, "unknown status %q", status)
		}
		if err := validateCommissionRule(input.CommissionRule); err != nil {
			return "", err
		}
		hash, err := s.hashPassword(input.Password)
		if err != nil {
			return "", err
		}
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			user, err := tx.CreateUser(domain.User{Email: input.Email, PasswordHash: hash, Role: domain.RoleAmbassador})
			if err != nil {
				return err
			}
			created, err = tx.CreateAmbassador(domain.Ambassador{
				UserID:         user.ID,
				Name:           name,
				Status:         status,
				CommissionRule: input.CommissionRule,
			})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateAmbassador applies the non-nil fields of update. A password change
// is recorded as its own audit entry before the ambassador update.
func (s *Service) UpdateAmbassador(ctx context.Context, actor domain.Actor, id string, update AmbassadorUpdate) (domain.Ambassador, domain.Result, error) {
	var updated domain.Ambassador
	var res domain.Result
	err := s.run(ctx, "update_ambassador", actor, func(ctx context.Context) (string, error) {
		if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
			return id, domain.Validation(domain.EntityAmbassador, "name is required")
		}
		if update.Status != nil && !validAmbassadorStatus(*update.Status) {
			return id, domain.Validation(domain.EntityAmbassador, "unknown status %q", *update.Status)
		}
		if err := validateCommissionRule(update.CommissionRule); err != nil {
			return id, err
		}
		var hash string
		if update.Password != nil {
			var err error
			if hash, err = s.hashPassword(*update.Password); err != nil {
				return id, err
			}
		}
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			current, ok := tx.Snapshot().FindAmbassador(id)
			if !ok {
				return domain.NotFound(domain.EntityAmbassador, id)
			}
			if hash != "" {
				if _, err := tx.RotateUserPassword(current.UserID, hash); err != nil {
					return err
				}
			}
			var err error
			updated, err = tx.UpdateAmbassador(id, func(a *domain.Ambassador) error {
				if update.Name != nil {
					a.Name = strings.TrimSpace(*update.Name)
				}
				if update.Status != nil {
					a.Status = *update.Status
				}
				if update.CommissionRule != nil {
					rule := *update.CommissionRule
					a.CommissionRule = &rule
				}
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteAmbassador removes the ambassador and its user; assigned clients are
// unassigned.
func (s *Service) DeleteAmbassador(ctx context.Context, actor domain.Actor, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_ambassador", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			return tx.DeleteAmbassador(id)
		})
		return id, err
	})
	return res, err
}

// GetAmbassador returns one ambassador.
func (s *Service) GetAmbassador(ctx context.Context, id string) (domain.Ambassador, error) {
	var amb domain.Ambassador
	err := s.view(ctx, func(v TransactionView) error {
		var ok bool
		if amb, ok = v.FindAmbassador(id); !ok {
			return domain.NotFound(domain.EntityAmbassador, id)
		}
		return nil
	})
	return amb, err
}

// ListAmbassadors returns every ambassador ordered by creation.
func (s *Service) ListAmbassadors(ctx context.Context) ([]domain.Ambassador, error) {
	var out []domain.Ambassador
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListAmbassadors()
		return nil
	})
	return out, err
}
