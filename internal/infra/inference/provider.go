// Package inference issues content-generation requests to an external model
// endpoint with timeout, retry and error classification. It knows nothing
// about recipes or ingredient schemas.
package inference

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"
)

// Part is an inline binary attachment sent alongside the prompt.
type Part struct {
	MimeType string
	Data     []byte
}

// Request is a single generation request.
type Request struct {
	Prompt string
	Parts  []Part
}

// Provider performs exactly one generation call against a model endpoint.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// StatusError is returned by providers for non-2xx HTTP responses.
type StatusError struct {
	Code   int
	Status string // provider status string, e.g. RESOURCE_EXHAUSTED
	Body   string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("http %d (%s): %s", e.Code, e.Status, truncate(e.Body, 200))
	}
	return fmt.Sprintf("http %d: %s", e.Code, truncate(e.Body, 200))
}

// Config holds inference endpoint and retry policy settings.
type Config struct {
	Provider    string        `yaml:"provider"` // gemini, openai
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`      // per attempt
	MaxAttempts int           `yaml:"max_attempts"` // total, including the first
	BaseDelay   time.Duration `yaml:"base_delay"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg Config) (Provider, error) {
	httpClient := newHTTPClient(cfg.HTTPTimeout)
	switch cfg.Provider {
	case "", "gemini":
		return NewGeminiProvider(cfg.Endpoint, cfg.Model, cfg.APIKey, httpClient), nil
	case "openai":
		return NewOpenAIProvider(cfg.Endpoint, cfg.Model, cfg.APIKey, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}

// NewFromConfig builds a resilient client around the configured provider.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithMaxAttempts(cfg.MaxAttempts),
		WithBaseDelay(cfg.BaseDelay),
	}
	return NewClient(p, append(base, opts...)...), nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	// The per-attempt race is shorter; this only bounds abandoned requests.
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// truncate caps s at n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
