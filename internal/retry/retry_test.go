package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDoRetriesThenSucceeds(t *testing.T) {
	b := Backoff{MaxRetries: 3, BaseDelay: 50 * time.Millisecond, Multiplier: 2}

	calls := 0
	var gaps []time.Duration
	last := time.Now()

	err := Do(context.Background(), b, func(context.Context) error {
		now := time.Now()
		gaps = append(gaps, now.Sub(last))
		last = now
		calls++
		if calls <= 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}

	// gaps[0] is the first attempt; the rest are inter-attempt delays.
	if gaps[1] < 50*time.Millisecond {
		t.Fatalf("first delay too short: %v", gaps[1])
	}
	if gaps[2] < 100*time.Millisecond {
		t.Fatalf("second delay too short: %v", gaps[2])
	}
}

func TestDoExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	b := Backoff{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 2}

	sentinel := fmt.Errorf("rpc unavailable: %w", errors.New("connection refused"))
	calls := 0

	err := Do(context.Background(), b, func(context.Context) error {
		calls++
		return sentinel
	})

	if calls != 3 {
		t.Fatalf("expected maxRetries+1 attempts, got %d", calls)
	}
	if err != sentinel {
		t.Fatalf("error identity not preserved: %v", err)
	}
}

func TestDoDelayCap(t *testing.T) {
	b := Backoff{MaxRetries: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 10}

	start := time.Now()
	err := Do(context.Background(), b, func(context.Context) error {
		return errors.New("always")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	// 1ms + 2ms + 2ms + 2ms of delays, far below the uncapped 1+10+100+1000ms.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("cap not applied, took %v", elapsed)
	}
}

func TestDoContextCancelled(t *testing.T) {
	b := Backoff{MaxRetries: 5, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, b, func(context.Context) error {
			return errors.New("transient")
		})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Do did not observe cancellation")
	}
}
