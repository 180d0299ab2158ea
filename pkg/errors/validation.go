package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is a single validation failure attached to a field path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors accumulates failures in the order they were found.
// A nil or empty list means the input is valid.
type ValidationErrors []FieldError

// Add appends a failure.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// Addf appends a failure with a formatted message.
func (v *ValidationErrors) Addf(field, format string, args ...interface{}) {
	v.Add(field, fmt.Sprintf(format, args...))
}

// Merge appends every failure from other.
func (v *ValidationErrors) Merge(other ValidationErrors) {
	*v = append(*v, other...)
}

// HasErrors reports whether any failure was recorded.
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Messages returns the failure messages in order.
func (v ValidationErrors) Messages() []string {
	out := make([]string, len(v))
	for i, fe := range v {
		out[i] = fe.Message
	}
	return out
}

// Contains reports whether message was recorded for any field.
func (v ValidationErrors) Contains(message string) bool {
	for _, fe := range v {
		if fe.Message == message {
			return true
		}
	}
	return false
}

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		if fe.Field == "" {
			parts[i] = fe.Message
			continue
		}
		parts[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(parts, "; ")
}

// Err converts the list into a VALIDATION_ERROR, or nil when empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	e := Clone(ErrValidation, "")
	e.Details = append([]FieldError(nil), v...)
	return e
}

// FromValidator flattens go-playground validator failures into field errors.
// Errors of any other kind are returned as a single entry.
func FromValidator(err error) ValidationErrors {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out.Add(fieldPath(fe), tagMessage(fe))
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	if ns == "" {
		return fe.Field()
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL.", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s].", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid.", fe.Field())
	}
}
