package inference

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/snapcook/internal/metrics"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
)

// Option configures the Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first backoff delay; later delays double.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client wraps a Provider with the timeout race, exponential backoff and
// retry classification.
type Client struct {
	provider    Provider
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	log         *slog.Logger
}

// NewClient creates a resilient client around p.
func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{
		provider:    p,
		timeout:     defaultTimeout,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Generate sends prompt and optional inline parts, returning the raw text.
// Retryable failures are retried with baseDelay * 2^(attempt-1) between
// attempts; anything else fails immediately. The returned error is always
// an *Error.
func (c *Client) Generate(ctx context.Context, prompt string, parts ...Part) (string, error) {
	req := Request{Prompt: prompt, Parts: parts}
	name := c.provider.Name()
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.baseDelay))

	var (
		text       string
		attempts   int
		lastReason Reason
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		start := time.Now()
		out, err := raceTimeout(ctx, c.timeout, func(ctx context.Context) (string, error) {
			return c.provider.Generate(ctx, req)
		})
		metrics.InferenceLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if err == nil && strings.TrimSpace(out) == "" {
			err = ErrEmptyResponse
		}
		if err == nil {
			metrics.InferenceAttempts.WithLabelValues(name, "success").Inc()
			text = out
			return nil
		}

		reason, retryable := Classify(err)
		lastReason = reason
		metrics.InferenceAttempts.WithLabelValues(name, string(reason)).Inc()
		c.log.Warn("Inference attempt failed",
			"provider", name,
			"attempt", attempts,
			"max_attempts", c.maxAttempts,
			"reason", reason,
			"retryable", retryable,
			"error", err,
		)

		if retryable && ctx.Err() == nil {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		if attempts > 1 {
			c.log.Info("Inference succeeded after retry", "provider", name, "attempts", attempts)
		}
		return text, nil
	}

	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		lastReason = ReasonCancelled
	}
	metrics.InferenceFailures.WithLabelValues(name, string(lastReason)).Inc()
	return "", &Error{Reason: lastReason, Attempts: attempts, Err: err}
}
