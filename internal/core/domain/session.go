package domain

import "time"

// CaptureSession is one photo-to-recipe attempt.
type CaptureSession struct {
	ID             string
	Status         SessionStatus
	Image          *ImagePayload
	ExtractedItems []string
	EditedItems    []string
	Notes          string
	Warnings       []string
	Draft          *GenerationResult
	LastError      *Error
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// SessionStatus is the capture state machine state.
type SessionStatus string

const (
	StatusIdle            SessionStatus = "idle"
	StatusAwaitingCapture SessionStatus = "awaiting_capture"
	StatusImageReady      SessionStatus = "image_ready"
	StatusExtracting      SessionStatus = "extracting"
	StatusEditing         SessionStatus = "editing"
	StatusGenerating      SessionStatus = "generating"
	StatusResult          SessionStatus = "result"
	StatusFailed          SessionStatus = "failed"
)

// Busy reports whether an inference call is in flight for this status.
func (s SessionStatus) Busy() bool {
	return s == StatusExtracting || s == StatusGenerating
}

// Clone returns a deep copy so callers can read session state without
// racing the controller.
func (s *CaptureSession) Clone() *CaptureSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Image = s.Image.Clone()
	c.ExtractedItems = append([]string(nil), s.ExtractedItems...)
	c.EditedItems = append([]string(nil), s.EditedItems...)
	c.Warnings = append([]string(nil), s.Warnings...)
	c.Draft = s.Draft.Clone()
	if s.LastError != nil {
		e := *s.LastError
		c.LastError = &e
	}
	return &c
}
