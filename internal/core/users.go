package core

import (
	"context"
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"opsdesk/pkg/domain"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// errInvalidCredentials deliberately does not say which half was wrong.
var errInvalidCredentials = domain.Validation(domain.EntityUser, "invalid credentials")

// NewClientUser describes a client portal account.
type NewClientUser struct {
	Email    string
	Password string
	ClientID string
}

func (s *Service) hashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", domain.Validation(domain.EntityUser, "password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > 72 {
		return "", domain.Validation(domain.EntityUser, "password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", domain.Validation(domain.EntityUser, "hash password: %v", err)
	}
	return string(hash), nil
}

func requireEmail(entity domain.EntityType, email string) error {
	if domain.NormalizeEmail(email) == "" {
		return domain.Validation(entity, "email is required")
	}
	return nil
}

// CreateAdmin creates an administrator account.
func (s *Service) CreateAdmin(ctx context.Context, actor domain.Actor, email, password string) (domain.User, domain.Result, error) {
	var created domain.User
	var res domain.Result
	err := s.run(ctx, "create_admin", actor, func(ctx context.Context) (string, error) {
		if err := requireEmail(domain.EntityUser, email); err != nil {
			return "", err
		}
		hash, err := s.hashPassword(password)
		if err != nil {
			return "", err
		}
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			created, err = tx.CreateUser(domain.User{Email: email, PasswordHash: hash, Role: domain.RoleAdmin})
			return err
		})
		return created.ID, err
	})
	return created.Redacted(), res, err
}

// CreateClientUser creates a client_user account linked to one client.
func (s *Service) CreateClientUser(ctx context.Context, actor domain.Actor, input NewClientUser) (domain.User, domain.Result, error) {
	var created domain.User
	var res domain.Result
	err := s.run(ctx, "create_client_user", actor, func(ctx context.Context) (string, error) {
		if err := requireEmail(domain.EntityUser, input.Email); err != nil {
			return "", err
		}
		hash, err := s.hashPassword(input.Password)
		if err != nil {
			return "", err
		}
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			if _, ok := tx.Snapshot().FindClient(input.ClientID); !ok {
				return domain.NotFound(domain.EntityClient, input.ClientID)
			}
			user, err := tx.CreateUser(domain.User{Email: input.Email, PasswordHash: hash, Role: domain.RoleClientUser})
			if err != nil {
				return err
			}
			if _, err := tx.LinkClientUser(user.ID, input.ClientID); err != nil {
				return err
			}
			created = user
			return nil
		})
		return created.ID, err
	})
	return created.Redacted(), res, err
}

// RotatePassword replaces a user's password hash.
func (s *Service) RotatePassword(ctx context.Context, actor domain.Actor, userID, password string) (domain.User, domain.Result, error) {
	var updated domain.User
	var res domain.Result
	err := s.run(ctx, "rotate_password", actor, func(ctx context.Context) (string, error) {
		hash, err := s.hashPassword(password)
		if err != nil {
			return userID, err
		}
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			updated, err = tx.RotateUserPassword(userID, hash)
			return err
		})
		return userID, err
	})
	return updated.Redacted(), res, err
}

// Authenticate checks email and password and returns the matching user.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	var user domain.User
	var found bool
	if err := s.view(ctx, func(v TransactionView) error {
		user, found = v.FindUserByEmail(email)
		return nil
	}); err != nil {
		return domain.User{}, err
	}
	if !found {
		// Keep timing equal to the wrong-password path.
		_ = bcrypt.CompareHashAndPassword(s.decoyHash(), []byte(password))
		s.logger.Info("authentication failed", "reason", "unknown email")
		return domain.User{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Error("password hash unreadable", "user_id", user.ID, "error", err)
		}
		s.logger.Info("authentication failed", "user_id", user.ID)
		return domain.User{}, errInvalidCredentials
	}
	return user.Redacted(), nil
}

func (s *Service) decoyHash() []byte {
	s.decoyOnce.Do(func() {
		s.decoy, _ = bcrypt.GenerateFromPassword([]byte("opsdesk-decoy-password"), s.bcryptCost)
	})
	return s.decoy
}

// ListUsers returns all users with password hashes redacted.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := s.view(ctx, func(v TransactionView) error {
		for _, u := range v.ListUsers() {
			users = append(users, u.Redacted())
		}
		return nil
	})
	return users, err
}
