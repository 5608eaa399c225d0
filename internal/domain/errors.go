package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
)

// NonFieldKey is the synthetic key for errors not tied to one submitted field.
const NonFieldKey = "error"

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
// Cause, when set, is an additional sentinel the error matches via errors.Is
// (ErrAlreadyExists for uniqueness conflicts, ErrForbidden for permission checks).
type ValidationError struct {
	Errors []FieldError
	Cause  error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}

// Fields returns the errors keyed by field name, suitable for display next to
// form fields. Several messages for one field are joined with "; ".
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		if prev, ok := out[fe.Field]; ok {
			out[fe.Field] = prev + "; " + fe.Message
			continue
		}
		out[fe.Field] = fe.Message
	}
	return out
}

// Has reports whether the error carries a message for field.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// NewConflictError reports a uniqueness conflict on field.
func NewConflictError(field string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: "already exists"}},
		Cause:  ErrAlreadyExists,
	}
}

// NewForbiddenError reports a permission failure keyed by field.
func NewForbiddenError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
		Cause:  ErrForbidden,
	}
}

// FieldsOf extracts the field map from err if it is a ValidationError.
// Any other error maps to a single NonFieldKey entry.
func FieldsOf(err error) map[string]string {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields()
	}
	return map[string]string{NonFieldKey: strings.TrimSpace(err.Error())}
}
