package core

import (
	"context"
	"strings"

	"opsdesk/pkg/domain"
)

func validateClient(c domain.Client) error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.Validation(domain.EntityClient, "name is required")
	}
	switch c.Status {
	case "", domain.ClientActive, domain.ClientPaused, domain.ClientCancelled:
	default:
		return domain.Validation(domain.EntityClient, "unknown status %q", c.Status)
	}
	switch c.OnboardingStatus {
	case "", domain.OnboardingPending, domain.OnboardingInProgress, domain.OnboardingComplete:
	default:
		return domain.Validation(domain.EntityClient, "unknown onboarding status %q", c.OnboardingStatus)
	}
	if c.Contract.MonthlyRetainerCents < 0 {
		return domain.Validation(domain.EntityClient, "monthly retainer must not be negative")
	}
	if c.Contract.StartAt != nil && c.Contract.EndAt != nil && !c.Contract.EndAt.After(*c.Contract.StartAt) {
		return domain.Validation(domain.EntityClient, "contract end must be after start")
	}
	return nil
}

// CreateClient creates a client, optionally already assigned to an active
// ambassador.
func (s *Service) CreateClient(ctx context.Context, actor domain.Actor, client domain.Client) (domain.Client, domain.Result, error) {
	var created domain.Client
	var res domain.Result
	err := s.run(ctx, "create_client", actor, func(ctx context.Context) (string, error) {
		client.Name = strings.TrimSpace(client.Name)
		if err := validateClient(client); err != nil {
			return "", err
		}
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			created, err = tx.CreateClient(client)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateClient mutates a client. Assignment is not changed here; use
// AssignClientToAmbassador.
func (s *Service) UpdateClient(ctx context.Context, actor domain.Actor, id string, mutator func(*domain.Client) error) (domain.Client, domain.Result, error) {
	var updated domain.Client
	var res domain.Result
	err := s.run(ctx, "update_client", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateClient(id, func(c *domain.Client) error {
				if err := mutator(c); err != nil {
					return err
				}
				c.Name = strings.TrimSpace(c.Name)
				return validateClient(*c)
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// AssignClientToAmbassador sets the client's ambassador, or clears it when
// ambassadorID is nil. Clearing only fails for an unknown client.
func (s *Service) AssignClientToAmbassador(ctx context.Context, actor domain.Actor, clientID string, ambassadorID *string) (domain.Client, domain.Result, error) {
	op := "assign_client"
	if ambassadorID == nil {
		op = "unassign_client"
	}
	var updated domain.Client
	var res domain.Result
	err := s.run(ctx, op, actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			updated, err = tx.AssignClient(clientID, ambassadorID)
			return err
		})
		return clientID, err
	})
	return updated, res, err
}

// GetClient returns one client.
func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var client domain.Client
	err := s.view(ctx, func(v TransactionView) error {
		var ok bool
		if client, ok = v.FindClient(id); !ok {
			return domain.NotFound(domain.EntityClient, id)
		}
		return nil
	})
	return client, err
}

// ListClients returns every client ordered by creation.
func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	var out []domain.Client
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListClients()
		return nil
	})
	return out, err
}

// ListClientsByAmbassador returns the clients currently assigned to
// ambassadorID.
func (s *Service) ListClientsByAmbassador(ctx context.Context, ambassadorID string) ([]domain.Client, error) {
	var out []domain.Client
	err := s.view(ctx, func(v TransactionView) error {
		for _, c := range v.ListClients() {
			if c.AmbassadorID != nil && *c.AmbassadorID == ambassadorID {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}
