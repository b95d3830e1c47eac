package trial

import (
	"errors"
	"fmt"
)

var (
	// ErrFreezeAlreadyOpen is returned by Tracker.Open while an episode is open.
	ErrFreezeAlreadyOpen = errors.New("freeze episode already open")

	// ErrNoOpenFreeze is returned by Tracker.Close when no episode is open.
	ErrNoOpenFreeze = errors.New("no open freeze episode")
)

// ValidationError reports operator input that was rejected.
// Operations returning a ValidationError leave state unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a reference to an unknown freeze or trial.
type NotFoundError struct {
	Kind string // "freeze" or "trial"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NewFreezeNotFound creates a NotFoundError for a freeze id.
func NewFreezeNotFound(id int) *NotFoundError {
	return &NotFoundError{Kind: "freeze", ID: fmt.Sprintf("%d", id)}
}

// NewTrialNotFound creates a NotFoundError for a trial id.
func NewTrialNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "trial", ID: id}
}

// IsValidation returns true if err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound returns true if err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
