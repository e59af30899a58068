package service

import (
	"errors"
	"fmt"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
)

// ErrQuoteNotFound is returned when the quote does not exist or the caller may not see it.
var ErrQuoteNotFound = errors.New("quote not found")

// AuthorizationError means the caller's resolved capability for the action is false.
type AuthorizationError struct {
	Action string
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("you are not allowed to %s this quote", e.Action)
}

// ValidationError is an action precondition the state machine does not cover.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PersistenceError wraps a failed database read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConflictError means the quote changed between read and write. Retrying the whole
// operation is safe because it re-validates from a fresh read.
type ConflictError struct {
	QuoteID string
}

func (e *ConflictError) Error() string {
	if e.QuoteID == "" {
		return "basket was modified by another request, please try again"
	}
	return "quote was modified by another request, please reload and try again"
}

// IsTransitionError reports whether err is a refused lifecycle transition.
func IsTransitionError(err error) bool {
	var te *lifecycle.TransitionError
	return errors.As(err, &te)
}

func validationErr(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
