// Package fault holds the error categories shared by every rental component.
// Domain packages wrap these so handlers can classify any error with errors.Is.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrIneligible        = errors.New("ineligible")
	ErrAlreadyResolved   = errors.New("already resolved")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrForbidden         = errors.New("forbidden")
)

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func Invalid(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
