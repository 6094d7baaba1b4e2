package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaceTimeout_FnWins(t *testing.T) {
	v, err := raceTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRaceTimeout_TimerWinsAndLoserIsAbandoned(t *testing.T) {
	finished := make(chan struct{})
	v, err := raceTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		defer close(finished)
		time.Sleep(50 * time.Millisecond)
		// The timeout is not propagated into fn's context
		return 7, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, v)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("abandoned call never completed")
	}
}

func TestRaceTimeout_ParentCancelWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := raceTimeout(ctx, time.Second, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return "late", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRaceTimeout_ZeroDurationWaits(t *testing.T) {
	v, err := raceTimeout(context.Background(), 0, func(ctx context.Context) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
