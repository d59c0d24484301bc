package apperrors

import (
	"errors"
	"fmt"
)

// The boundary distinguishes these outcomes; collapsing NotFound and
// Forbidden would leak resource existence to unauthorized actors.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// ErrRetryable marks transient storage failures. The client should
	// re-request a ticket or re-confirm.
	ErrRetryable = errors.New("temporary storage failure")
)

// ValidationError is a rejected request with field-level detail. No side
// effects have been performed when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func Retryable(err error) error {
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
