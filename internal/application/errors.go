package application

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrConflict           = errors.New("username already taken")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRepository         = errors.New("repository failure")
	ErrUnavailable        = errors.New("feature not configured")
)

// ValidationError describes a rejected input field. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func repoErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRepository, op, err)
}
