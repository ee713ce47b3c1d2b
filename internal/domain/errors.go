package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrNotFound                = errors.New("not found")
	ErrDuplicateRecord         = errors.New("payment record already exists for member and month")
	ErrDuplicateActiveTemplate = errors.New("an active monthly template already exists for this month")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrNotConfirmed            = errors.New("member has not confirmed payment")
	ErrInsufficientBalance     = errors.New("insufficient wallet balance")
	ErrUnauthorized            = errors.New("unauthorized")

	// The following refine ErrInvalidStateTransition, so errors.Is matches both.
	ErrAlreadyVerified       = fmt.Errorf("%w: payment already verified", ErrInvalidStateTransition)
	ErrAlreadyPending        = fmt.Errorf("%w: a resubmission is already awaiting review", ErrInvalidStateTransition)
	ErrNoPendingResubmission = fmt.Errorf("%w: no resubmission awaiting review", ErrInvalidStateTransition)
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
