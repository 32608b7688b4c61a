// Package retry implements the exponential backoff policy shared by every
// chain-facing call in the pipeline.
package retry

import (
	"context"
	"time"
)

// Backoff describes an exponential retry schedule. MaxRetries counts the
// additional attempts after the first, so a call runs at most MaxRetries+1
// times.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// Default is the chain RPC policy: three retries starting at one second,
// doubling, capped at thirty seconds.
func Default() Backoff {
	return Backoff{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
	}
}

// Do runs fn until it succeeds or the schedule is exhausted. The error from
// the final attempt is returned unchanged so callers can match on sentinel
// values and typed errors. Context cancellation aborts the wait between
// attempts and returns ctx.Err().
func Do(ctx context.Context, b Backoff, fn func(context.Context) error) error {
	if b.MaxRetries < 0 {
		b.MaxRetries = 0
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = time.Second
	}
	if b.Multiplier <= 1 {
		b.Multiplier = 2
	}

	delay := b.BaseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= b.MaxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * b.Multiplier)
		if b.MaxDelay > 0 && delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}
}
