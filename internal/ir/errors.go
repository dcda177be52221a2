package ir

import (
	"errors"
	"fmt"
)

// ValidationError reports bad action input. It is never retried.
type ValidationError struct {
	ActionID string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch {
	case e.ActionID != "" && e.Field != "":
		return fmt.Sprintf("validation failed for action %s: %s: %s", e.ActionID, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateAction checks the structural fields every action must carry.
func ValidateAction(a Action) error {
	switch {
	case a.ID == "":
		return &ValidationError{Field: "id", Message: "action id is required"}
	case a.Type == "":
		return &ValidationError{ActionID: a.ID, Field: "type", Message: "action type is required"}
	case a.Scope == "":
		return &ValidationError{ActionID: a.ID, Field: "scope", Message: "action scope is required"}
	}
	return nil
}
