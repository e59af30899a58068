// Package lifecycle defines the quote statuses and the only legal edges between them.
// Everything here is pure: no persistence, no clocks, no callers' context.
package lifecycle

import "fmt"

// Status is a quote lifecycle status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusReviewing Status = "reviewing"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusConverted Status = "converted"
	StatusExpired   Status = "expired"
)

var allStatuses = []Status{
	StatusDraft,
	StatusPending,
	StatusReviewing,
	StatusApproved,
	StatusRejected,
	StatusConverted,
	StatusExpired,
}

// transitions is the complete edge table. A status missing from the map has no exits.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusPending},
	StatusPending:   {StatusReviewing, StatusRejected},
	StatusReviewing: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusConverted, StatusExpired},
}

// AllStatuses returns the seven statuses in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown quote status '%s'", raw)
	}
	return s, nil
}

// IsValidTransition reports whether next is a listed successor of current.
func IsValidTransition(current, next Status) bool {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedNextStates returns the successors of current; empty for terminal states.
func AllowedNextStates(current Status) []Status {
	next := transitions[current]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// IsTerminalState reports whether no transition may leave s.
func IsTerminalState(s Status) bool {
	switch s {
	case StatusRejected, StatusConverted, StatusExpired:
		return true
	}
	return false
}

// IsQuoteLocked reports whether the quote content is frozen. Approved quotes are locked
// even though they can still move to converted or expired.
func IsQuoteLocked(s Status) bool {
	return s == StatusApproved || IsTerminalState(s)
}

// Reason classifies why a transition was refused.
type Reason string

const (
	ReasonTerminal   Reason = "terminal_state"
	ReasonNoop       Reason = "same_state"
	ReasonNotAllowed Reason = "not_allowed"
)

// TransitionError is returned for every refused transition.
type TransitionError struct {
	From   Status
	To     Status
	Reason Reason
}

func (e *TransitionError) Error() string {
	switch e.Reason {
	case ReasonTerminal:
		return fmt.Sprintf("quote is in terminal state '%s' and cannot be changed", e.From)
	case ReasonNoop:
		return fmt.Sprintf("quote is already in '%s' status", e.From)
	default:
		return fmt.Sprintf("invalid status transition from '%s' to '%s'", e.From, e.To)
	}
}

// ValidationResult is the structured answer of ValidateTransition.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Error *TransitionError `json:"-"`
}

// Message returns the refusal text, or "" when valid.
func (r ValidationResult) Message() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// Err returns the refusal as an error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// ValidateTransition checks current → next. Leaving a terminal state is reported first,
// then same-state no-ops, then edges missing from the table.
func ValidateTransition(current, next Status) ValidationResult {
	if IsTerminalState(current) {
		return refuse(current, next, ReasonTerminal)
	}
	if current == next {
		return refuse(current, next, ReasonNoop)
	}
	if !IsValidTransition(current, next) {
		return refuse(current, next, ReasonNotAllowed)
	}
	return ValidationResult{Valid: true}
}

func refuse(from, to Status, reason Reason) ValidationResult {
	return ValidationResult{
		Valid: false,
		Error: &TransitionError{From: from, To: to, Reason: reason},
	}
}
