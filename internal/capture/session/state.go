package session

import (
	"errors"
	"time"

	"github.com/vietddude/snapcook/internal/core/domain"
)

// Status is an alias for domain.SessionStatus for internal use.
type Status = domain.SessionStatus

var (
	// ErrInvalidTransition is returned when an action is not allowed in the
	// current status.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrBusy is returned when an action arrives while another call is in flight.
	ErrBusy = errors.New("session is busy")

	// ErrSessionReset is returned to an in-flight action whose session was
	// reset before the call completed. Its result is discarded.
	ErrSessionReset = errors.New("session was reset")
)

// ValidTransitions defines allowed status changes.
// Key is the current status, value is the list of valid next statuses.
// Reset is the only way back to idle and bypasses this table.
var ValidTransitions = map[Status][]Status{
	domain.StatusIdle: {
		domain.StatusAwaitingCapture,
		domain.StatusImageReady,
		domain.StatusFailed,
	},
	domain.StatusAwaitingCapture: {domain.StatusImageReady, domain.StatusFailed},
	domain.StatusImageReady:      {domain.StatusExtracting, domain.StatusFailed},
	domain.StatusExtracting:      {domain.StatusEditing, domain.StatusFailed},
	domain.StatusEditing: {
		domain.StatusExtracting,
		domain.StatusGenerating,
		domain.StatusFailed,
	},
	domain.StatusGenerating: {domain.StatusResult, domain.StatusFailed},
	domain.StatusResult:     {domain.StatusGenerating},
	domain.StatusFailed: {
		domain.StatusAwaitingCapture,
		domain.StatusImageReady,
		domain.StatusExtracting,
		domain.StatusGenerating,
	},
}

// CanTransition checks if a transition from one status to another is valid.
func CanTransition(from, to Status) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a status change with metadata.
type Transition struct {
	SessionID string
	From      Status
	To        Status
	Reason    string
	Timestamp time.Time
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StatusDescription returns a human-readable description of a status.
func StatusDescription(s Status) string {
	switch s {
	case domain.StatusIdle:
		return "Idle - no capture in progress"
	case domain.StatusAwaitingCapture:
		return "Awaiting capture - camera open"
	case domain.StatusImageReady:
		return "Image ready - waiting for extraction"
	case domain.StatusExtracting:
		return "Extracting - identifying ingredients"
	case domain.StatusEditing:
		return "Editing - review the ingredient list"
	case domain.StatusGenerating:
		return "Generating - writing a recipe"
	case domain.StatusResult:
		return "Result - recipe ready to save"
	case domain.StatusFailed:
		return "Failed - see last error"
	default:
		return "Unknown status"
	}
}
