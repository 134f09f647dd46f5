package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by entity operations.
type ErrorKind string

// Error kinds.
const (
	KindNotFound         ErrorKind = "not_found"
	KindDuplicateEmail   ErrorKind = "duplicate_email"
	KindInvalidReference ErrorKind = "invalid_reference"
	KindValidation       ErrorKind = "validation"
	KindPersistence      ErrorKind = "persistence"
)

// Sentinels for errors.Is comparisons. Any *Error of the same kind matches.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrDuplicateEmail   = &Error{Kind: KindDuplicateEmail}
	ErrInvalidReference = &Error{Kind: KindInvalidReference}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrPersistence      = &Error{Kind: KindPersistence}
)

// Error is the typed failure returned by stores and services.
type Error struct {
	Kind   ErrorKind
	Entity EntityType
	ID     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	switch {
	case e.Entity != "" && e.ID != "":
		msg += fmt.Sprintf(": %s %q", e.Entity, e.ID)
	case e.Entity != "":
		msg += ": " + string(e.Entity)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" when err is not a domain error.
// Blocking rule violations classify as validation failures.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var rv RuleViolationError
	if errors.As(err, &rv) {
		return KindValidation
	}
	return ""
}

// NotFound reports a missing entity.
func NotFound(entity EntityType, id string) error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id}
}

// DuplicateEmail reports an email uniqueness violation.
func DuplicateEmail(email string) error {
	return &Error{Kind: KindDuplicateEmail, Entity: EntityUser, Reason: fmt.Sprintf("email %q already registered", email)}
}

// InvalidReference reports a reference to a missing or unusable entity.
func InvalidReference(entity EntityType, id, reason string) error {
	return &Error{Kind: KindInvalidReference, Entity: entity, ID: id, Reason: reason}
}

// Validation reports malformed input.
func Validation(entity EntityType, format string, args ...any) error {
	return &Error{Kind: KindValidation, Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// Persistence wraps a storage failure.
func Persistence(reason string, err error) error {
	return &Error{Kind: KindPersistence, Reason: reason, Err: err}
}
