package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the provider answers with no text.
	ErrEmptyResponse = errors.New("EMPTY_RESPONSE")

	// ErrMissingCredentials is returned before any request when no API key is set.
	ErrMissingCredentials = errors.New("missing API key")
)

// Reason describes why an inference call failed.
type Reason string

const (
	ReasonTimeout       Reason = "timeout"
	ReasonRateLimited   Reason = "rate_limited"
	ReasonMisconfigured Reason = "misconfigured"
	ReasonBadRequest    Reason = "bad_request"
	ReasonUnavailable   Reason = "unavailable"
	ReasonEmptyResponse Reason = "empty_response"
	ReasonNetwork       Reason = "network"
	ReasonCancelled     Reason = "cancelled"
)

// Classify maps an attempt error to a reason and whether another attempt
// may succeed. Rate limits are not retried: hammering a throttled quota
// only burns the budget.
func Classify(err error) (Reason, bool) {
	if err == nil {
		return "", false
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return ReasonTimeout, true
	case errors.Is(err, ErrEmptyResponse):
		return ReasonEmptyResponse, true
	case errors.Is(err, ErrMissingCredentials):
		return ReasonMisconfigured, false
	case errors.Is(err, context.Canceled):
		return ReasonCancelled, false
	case errors.Is(err, context.DeadlineExceeded):
		// Also covers http.Client timeouts; the caller checks its own ctx
		return ReasonTimeout, true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout, true
		}
		return ReasonNetwork, true
	}

	// Unknown failures default to retry (transport hiccups, truncated bodies)
	return ReasonUnavailable, true
}

func classifyStatus(se *StatusError) (Reason, bool) {
	status := strings.ToUpper(se.Status)
	body := strings.ToLower(se.Body)

	switch {
	case se.Code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" ||
		strings.Contains(body, "rate limit") || strings.Contains(body, "quota"):
		return ReasonRateLimited, false
	case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden ||
		status == "PERMISSION_DENIED" || status == "UNAUTHENTICATED" ||
		strings.Contains(body, "api key") || strings.Contains(body, "api_key_invalid"):
		return ReasonMisconfigured, false
	case se.Code == http.StatusNotFound:
		// Unknown model or deployment name
		return ReasonMisconfigured, false
	case se.Code == http.StatusRequestTimeout || se.Code == http.StatusGatewayTimeout:
		return ReasonTimeout, true
	case se.Code >= 500:
		return ReasonUnavailable, true
	case se.Code >= 400:
		return ReasonBadRequest, false
	default:
		return ReasonUnavailable, true
	}
}

// Error is the terminal failure of a Generate call.
type Error struct {
	Reason   Reason
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonTimeout:
		return fmt.Sprintf("inference timed out after %d attempt(s)", e.Attempts)
	case ReasonRateLimited:
		return "inference rate limited, try again later"
	case ReasonMisconfigured:
		return fmt.Sprintf("inference misconfigured: %v", e.Err)
	case ReasonBadRequest:
		return fmt.Sprintf("inference rejected the request: %v", e.Err)
	case ReasonCancelled:
		return "inference cancelled"
	case ReasonEmptyResponse:
		return fmt.Sprintf("inference unavailable: %v after %d attempt(s)", ErrEmptyResponse, e.Attempts)
	default:
		return fmt.Sprintf("inference unavailable after %d attempt(s): %v", e.Attempts, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf returns the terminal reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	return "", false
}
