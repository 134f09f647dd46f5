package core

import (
	"context"

	"opsdesk/pkg/domain"
)

// NewAppointmentWindowRule returns the rule blocking appointments whose end
// is not after their start. Only appointments touched by the transaction are
// checked.
func NewAppointmentWindowRule() domain.Rule {
	return appointmentWindowRule{}
}

type appointmentWindowRule struct{}

func (appointmentWindowRule) Name() string { return "appointment_window" }

func (r appointmentWindowRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAppointment || change.Action == domain.ActionDelete {
			continue
		}
		appt, ok := view.FindAppointment(change.EntityID)
		if !ok {
			continue
		}
		if !appt.EndAt.After(appt.StartAt) {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityAppointment, appt.ID,
				"appointment end_at must be after start_at"))
		}
	}
	return res, nil
}
