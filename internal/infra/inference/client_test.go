package inference

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Mock Provider
// =============================================================================

type step func(ctx context.Context) (string, error)

type scriptedProvider struct {
	mu    sync.Mutex
	calls int
	reqs  []Request
	steps []step
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, req Request) (string, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()

	if i >= len(p.steps) {
		return "", errors.New("unexpected call")
	}
	return p.steps[i](ctx)
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func reply(text string) step {
	return func(ctx context.Context) (string, error) { return text, nil }
}

func fail(err error) step {
	return func(ctx context.Context) (string, error) { return "", err }
}

// hang outlives the attempt timeout and then answers anyway.
func hang(late string) step {
	return func(ctx context.Context) (string, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return late, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func fastClient(p Provider) *Client {
	return NewClient(p,
		WithTimeout(20*time.Millisecond),
		WithBaseDelay(time.Millisecond),
	)
}

func requireReason(t *testing.T, err error, want Reason) *Error {
	t.Helper()
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, want, ie.Reason)
	return ie
}

// =============================================================================
// Retry Policy
// =============================================================================

func TestGenerate_FirstAttemptSucceeds(t *testing.T) {
	p := &scriptedProvider{steps: []step{reply(`{"ok":true}`)}}

	out, err := fastClient(p).Generate(context.Background(), "hello", Part{MimeType: "image/jpeg", Data: []byte{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, 1, p.callCount())
	require.Len(t, p.reqs[0].Parts, 1)
	assert.Equal(t, "image/jpeg", p.reqs[0].Parts[0].MimeType)
	assert.Equal(t, "hello", p.reqs[0].Prompt)
}

func TestGenerate_RetriesTimeoutsThenSucceeds(t *testing.T) {
	p := &scriptedProvider{steps: []step{hang("late-1"), hang("late-2"), reply("fresh")}}

	out, err := fastClient(p).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "fresh", out, "late responses from abandoned attempts must be discarded")
	assert.Equal(t, 3, p.callCount())
}

func TestGenerate_ExhaustsRetryableFailures(t *testing.T) {
	unavailable := &StatusError{Code: http.StatusServiceUnavailable, Body: "overloaded"}
	p := &scriptedProvider{steps: []step{fail(unavailable), fail(unavailable), fail(unavailable), reply("never")}}

	_, err := fastClient(p).Generate(context.Background(), "prompt")
	ie := requireReason(t, err, ReasonUnavailable)
	assert.Equal(t, 3, ie.Attempts)
	assert.Equal(t, 3, p.callCount())
	assert.Contains(t, err.Error(), "unavailable")
}

func TestGenerate_AllAttemptsTimeOut(t *testing.T) {
	p := &scriptedProvider{steps: []step{hang("a"), hang("b"), hang("c")}}

	_, err := fastClient(p).Generate(context.Background(), "prompt")
	requireReason(t, err, ReasonTimeout)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, 3, p.callCount())
}

func TestGenerate_NonRetryableStopsImmediately(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason Reason
		text   string
	}{
		{"invalid credentials", &StatusError{Code: http.StatusUnauthorized, Body: "bad key"}, ReasonMisconfigured, "misconfigured"},
		{"missing credentials", ErrMissingCredentials, ReasonMisconfigured, "misconfigured"},
		{"rate limited", &StatusError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}, ReasonRateLimited, "rate limited"},
		{"malformed request", &StatusError{Code: http.StatusBadRequest, Body: "invalid JSON payload"}, ReasonBadRequest, "rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{steps: []step{fail(tt.err), reply("never")}}

			_, err := fastClient(p).Generate(context.Background(), "prompt")
			ie := requireReason(t, err, tt.reason)
			assert.Equal(t, 1, ie.Attempts)
			assert.Equal(t, 1, p.callCount())
			assert.Contains(t, err.Error(), tt.text)
		})
	}
}

func TestGenerate_EmptyResponseIsRetried(t *testing.T) {
	p := &scriptedProvider{steps: []step{reply(""), reply("   \n"), reply("done")}}

	out, err := fastClient(p).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 3, p.callCount())
}

func TestGenerate_EmptyResponseExhausted(t *testing.T) {
	p := &scriptedProvider{steps: []step{reply(""), reply(""), reply("")}}

	_, err := fastClient(p).Generate(context.Background(), "prompt")
	requireReason(t, err, ReasonEmptyResponse)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Contains(t, err.Error(), "EMPTY_RESPONSE")
}

func TestGenerate_BackoffDoublesBetweenAttempts(t *testing.T) {
	unavailable := &StatusError{Code: http.StatusBadGateway}
	p := &scriptedProvider{steps: []step{fail(unavailable), fail(unavailable), fail(unavailable)}}
	c := NewClient(p, WithTimeout(time.Second), WithBaseDelay(20*time.Millisecond))

	start := time.Now()
	_, err := c.Generate(context.Background(), "prompt")
	require.Error(t, err)

	// 20ms before attempt 2, 40ms before attempt 3
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestGenerate_CancelledContext(t *testing.T) {
	p := &scriptedProvider{steps: []step{reply("never")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fastClient(p).Generate(ctx, "prompt")
	requireReason(t, err, ReasonCancelled)
	assert.Equal(t, 0, p.callCount())
}

func TestGenerate_ProviderPanicIsContained(t *testing.T) {
	boom := func(ctx context.Context) (string, error) { panic("boom") }
	p := &scriptedProvider{steps: []step{boom, reply("recovered")}}

	out, err := fastClient(p).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
}

func TestGenerate_MaxAttemptsOption(t *testing.T) {
	unavailable := &StatusError{Code: http.StatusInternalServerError}
	p := &scriptedProvider{steps: []step{fail(unavailable), fail(unavailable), fail(unavailable)}}
	c := NewClient(p, WithTimeout(time.Second), WithBaseDelay(time.Millisecond), WithMaxAttempts(1))

	_, err := c.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, p.callCount())
}
