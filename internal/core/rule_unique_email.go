package core

import (
	"context"
	"fmt"

	"opsdesk/pkg/domain"
)

// NewUniqueEmailRule returns the rule blocking two users that share a
// normalized email.
func NewUniqueEmailRule() domain.Rule {
	return uniqueEmailRule{}
}

type uniqueEmailRule struct{}

func (uniqueEmailRule) Name() string { return "unique_email" }

func (r uniqueEmailRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]string)
	for _, u := range view.ListUsers() {
		email := domain.NormalizeEmail(u.Email)
		if first, dup := seen[email]; dup {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityUser, u.ID,
				fmt.Sprintf("user %s shares email %q with user %s", u.ID, email, first)))
			continue
		}
		seen[email] = u.ID
	}
	return res, nil
}
