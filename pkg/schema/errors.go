package schema

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	KindUnknownAction ErrorKind = "unknown_action"
	KindMissingField  ErrorKind = "missing_field"
	KindInvalidValue  ErrorKind = "invalid_value"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Kind   ErrorKind // Failure class
	Key    string    // Field name (or action name for KindUnknownAction)
	Reason string    // Human-readable reason for failure
	Value  any       // The value that failed validation
}

func (e *ValidationError) Error() string {
	switch {
	case e.Kind == KindUnknownAction:
		return fmt.Sprintf("unknown action %q", e.Key)
	case e.Value == nil:
		return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
	default:
		return fmt.Sprintf("field %q: %s (got %T)", e.Key, e.Reason, e.Value)
	}
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}

// UnknownAction builds the error returned for an action name that is not declared.
func UnknownAction(name string) error {
	return &AggregateError{Errors: []error{&ValidationError{
		Kind:   KindUnknownAction,
		Key:    name,
		Reason: "not declared",
	}}}
}

// HasKind reports whether err contains a ValidationError of the given kind.
func HasKind(err error, kind ErrorKind) bool {
	for _, e := range ValidationErrors(err) {
		var ve *ValidationError
		if errors.As(e, &ve) && ve.Kind == kind {
			return true
		}
	}
	return false
}
