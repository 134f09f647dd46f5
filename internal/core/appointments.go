package core

import (
	"context"
	"strings"

	"opsdesk/pkg/domain"
)

func validateAppointment(a domain.Appointment) error {
	if strings.TrimSpace(a.Title) == "" {
		return domain.Validation(domain.EntityAppointment, "title is required")
	}
	if !a.EndAt.After(a.StartAt) {
		return domain.Validation(domain.EntityAppointment, "end_at must be after start_at")
	}
	switch a.Status {
	case "", domain.AppointmentScheduled, domain.AppointmentDone, domain.AppointmentCancelled:
	default:
		return domain.Validation(domain.EntityAppointment, "unknown status %q", a.Status)
	}
	return nil
}

// CreateAppointment schedules an appointment for an ambassador.
func (s *Service) CreateAppointment(ctx context.Context, actor domain.Actor, a domain.Appointment) (domain.Appointment, domain.Result, error) {
	var created domain.Appointment
	var res domain.Result
	err := s.run(ctx, "create_appointment", actor, func(ctx context.Context) (string, error) {
		if err := validateAppointment(a); err != nil {
			return "", err
		}
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			created, err = tx.CreateAppointment(a)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateAppointment mutates an appointment. The window is checked against
// the mutated value before it is stored.
func (s *Service) UpdateAppointment(ctx context.Context, actor domain.Actor, id string, mutator func(*domain.Appointment) error) (domain.Appointment, domain.Result, error) {
	var updated domain.Appointment
	var res domain.Result
	err := s.run(ctx, "update_appointment", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateAppointment(id, func(a *domain.Appointment) error {
				if err := mutator(a); err != nil {
					return err
				}
				return validateAppointment(*a)
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteAppointment removes an appointment.
func (s *Service) DeleteAppointment(ctx context.Context, actor domain.Actor, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_appointment", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			return tx.DeleteAppointment(id)
		})
		return id, err
	})
	return res, err
}

// ListAppointments returns every appointment ordered by creation.
func (s *Service) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	var out []domain.Appointment
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListAppointments()
		return nil
	})
	return out, err
}
