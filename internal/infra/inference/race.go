package inference

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an attempt does not settle before its deadline.
var ErrTimeout = errors.New("attempt timed out")

type outcome[T any] struct {
	val T
	err error
}

// raceTimeout waits for whichever settles first: fn, the timeout, or ctx.
//
// The loser is abandoned, not destroyed. fn keeps the caller's ctx (the
// timeout is never propagated into it) and its late result lands in a
// buffered channel owned by this call only, so it is dropped instead of
// leaking into a later attempt.
func raceTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome[T]{val: zero, err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome[T]{val: v, err: err}
	}()

	var zero T
	if d <= 0 {
		select {
		case o := <-done:
			return o.val, o.err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.val, o.err
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
