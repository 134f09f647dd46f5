package core

import (
	"context"
	"fmt"

	"opsdesk/pkg/domain"
)

// NewReferentialIntegrityRule returns the rule blocking commits that leave
// a reference to a missing record. Commissions and appointments are history
// and may outlive their ambassador, so only references a transaction sets or
// changes on them are checked.
func NewReferentialIntegrityRule() domain.Rule {
	return referentialIntegrityRule{}
}

type referentialIntegrityRule struct{}

func (referentialIntegrityRule) Name() string { return "referential_integrity" }

// touchedRecord keeps the state a record had before its first change in the
// transaction. A nil before marks a record created by the transaction.
type touchedRecord struct {
	before any
}

func (r referentialIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := make(map[domain.EntityType]map[string]touchedRecord)
	for _, change := range changes {
		if touched[change.Entity] == nil {
			touched[change.Entity] = make(map[string]touchedRecord)
		}
		if _, seen := touched[change.Entity][change.EntityID]; seen {
			continue
		}
		touched[change.Entity][change.EntityID] = touchedRecord{before: change.Before}
	}
	block := func(entity domain.EntityType, id, format string, args ...any) {
		res.Violations = append(res.Violations, blockingViolation(r.Name(), entity, id, fmt.Sprintf(format, args...)))
	}

	for _, amb := range view.ListAmbassadors() {
		owner, ok := view.FindUser(amb.UserID)
		switch {
		case !ok:
			block(domain.EntityAmbassador, amb.ID, "ambassador %s references missing user %s", amb.ID, amb.UserID)
		case owner.Role != domain.RoleAmbassador:
			block(domain.EntityAmbassador, amb.ID, "ambassador %s owner %s has role %s", amb.ID, amb.UserID, owner.Role)
		}
	}
	for _, client := range view.ListClients() {
		if client.AmbassadorID == nil {
			continue
		}
		if _, ok := view.FindAmbassador(*client.AmbassadorID); !ok {
			block(domain.EntityClient, client.ID, "client %s references missing ambassador %s", client.ID, *client.AmbassadorID)
		}
	}
	for _, c := range view.ListCommissions() {
		rec, ok := touched[domain.EntityCommission][c.ID]
		if !ok {
			continue
		}
		prev, hadPrev := rec.before.(domain.Commission)
		if !hadPrev || prev.AmbassadorID != c.AmbassadorID {
			if _, ok := view.FindAmbassador(c.AmbassadorID); !ok {
				block(domain.EntityCommission, c.ID, "commission %s references missing ambassador %s", c.ID, c.AmbassadorID)
			}
		}
		if !hadPrev || prev.ClientID != c.ClientID {
			if _, ok := view.FindClient(c.ClientID); !ok {
				block(domain.EntityCommission, c.ID, "commission %s references missing client %s", c.ID, c.ClientID)
			}
		}
	}
	for _, a := range view.ListAppointments() {
		rec, ok := touched[domain.EntityAppointment][a.ID]
		if !ok {
			continue
		}
		prev, hadPrev := rec.before.(domain.Appointment)
		if !hadPrev || prev.AmbassadorID != a.AmbassadorID {
			if _, ok := view.FindAmbassador(a.AmbassadorID); !ok {
				block(domain.EntityAppointment, a.ID, "appointment %s references missing ambassador %s", a.ID, a.AmbassadorID)
			}
		}
		if a.ClientID != nil && (!hadPrev || prev.ClientID == nil || *prev.ClientID != *a.ClientID) {
			if _, ok := view.FindClient(*a.ClientID); !ok {
				block(domain.EntityAppointment, a.ID, "appointment %s references missing client %s", a.ID, *a.ClientID)
			}
		}
	}
	for _, p := range view.ListDashboardProjects() {
		if _, ok := view.FindClient(p.ClientID); !ok {
			block(domain.EntityDashboardProject, p.ID, "dashboard project %s references missing client %s", p.ID, p.ClientID)
		}
	}
	for _, link := range view.ListClientUserLinks() {
		if _, ok := view.FindUser(link.UserID); !ok {
			block(domain.EntityClientUser, link.UserID, "client user link references missing user %s", link.UserID)
		}
		if _, ok := view.FindClient(link.ClientID); !ok {
			block(domain.EntityClientUser, link.UserID, "client user %s references missing client %s", link.UserID, link.ClientID)
		}
	}
	return res, nil
}
