package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPProbe_EmptyURLIsOnline(t *testing.T) {
	assert.True(t, NewHTTPProbe("", 0, 0).IsOnline(context.Background()))
}

func TestHTTPProbe_Status(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p := NewHTTPProbe(srv.URL, time.Second, 0)
	ctx := context.Background()
	assert.True(t, p.IsOnline(ctx))

	status.Store(http.StatusNotFound)
	assert.True(t, p.IsOnline(ctx), "4xx still means the network is up")

	status.Store(http.StatusBadGateway)
	assert.False(t, p.IsOnline(ctx))
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.False(t, NewHTTPProbe(url, 200*time.Millisecond, 0).IsOnline(context.Background()))
}

func TestHTTPProbe_CachesWithinTTL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := NewHTTPProbe(srv.URL, time.Second, time.Hour)
	ctx := context.Background()
	assert.True(t, p.IsOnline(ctx))
	assert.True(t, p.IsOnline(ctx))
	assert.Equal(t, int32(1), hits.Load())

	p.Invalidate()
	assert.True(t, p.IsOnline(ctx))
	assert.Equal(t, int32(2), hits.Load())
}
