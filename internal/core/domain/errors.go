package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPickCancelled is returned by an image picker when the user backs out.
	ErrPickCancelled = errors.New("image selection cancelled")

	// ErrPermissionDenied is returned by collaborators when camera or
	// library access is refused.
	ErrPermissionDenied = errors.New("permission denied")
)

// ErrorKind classifies failures surfaced to callers of the capture pipeline.
type ErrorKind string

const (
	KindPermission ErrorKind = "permission"
	KindCamera     ErrorKind = "camera"
	KindNetwork    ErrorKind = "network"
	KindAI         ErrorKind = "ai"
	KindValidation ErrorKind = "validation"
	KindUnknown    ErrorKind = "unknown"
)

// Error is the typed error record attached to a failed session or returned
// directly by the client and validator.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewError builds an Error of the given kind wrapping err.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != e.Err.Error() {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// AsError converts any error into an *Error, keeping an existing one intact.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return NewError(KindUnknown, err.Error(), err)
}
