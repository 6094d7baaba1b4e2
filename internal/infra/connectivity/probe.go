// Package connectivity decides whether the remote store is worth trying.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HTTPProbe reports online when a HEAD request to URL gets any non-5xx
// answer. Results are cached for TTL so drains don't hammer the endpoint.
type HTTPProbe struct {
	url     string
	ttl     time.Duration
	client  *http.Client
	mu      sync.Mutex
	checked time.Time
	online  bool
}

// NewHTTPProbe creates a probe. An empty url means always online.
func NewHTTPProbe(url string, timeout, ttl time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProbe{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
	}
}

// IsOnline implements syncqueue.ConnectivityChecker.
func (p *HTTPProbe) IsOnline(ctx context.Context) bool {
	if p.url == "" {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ttl > 0 && !p.checked.IsZero() && time.Since(p.checked) < p.ttl {
		return p.online
	}
	p.online = p.probe(ctx)
	p.checked = time.Now()
	return p.online
}

func (p *HTTPProbe) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Invalidate drops the cached result.
func (p *HTTPProbe) Invalidate() {
	p.mu.Lock()
	p.checked = time.Time{}
	p.mu.Unlock()
}
