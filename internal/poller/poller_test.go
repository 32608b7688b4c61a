package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eventscope/internal/model"
	"eventscope/internal/retry"
)

type fakeChain struct {
	mu          sync.Mutex
	height      uint64
	logs        map[uint64][]model.RawLogRecord
	heightErr   error
	logsErr     error
	heightCalls int
	rangeCalls  []blockRange
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heightCalls++
	if f.heightErr != nil {
		return 0, f.heightErr
	}
	return f.height, nil
}

func (f *fakeChain) LogsInRange(_ context.Context, from, to uint64) ([]model.RawLogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeCalls = append(f.rangeCalls, blockRange{From: from, To: to})
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	var out []model.RawLogRecord
	for n := from; n <= to; n++ {
		out = append(out, f.logs[n]...)
	}
	return out, nil
}

func (f *fakeChain) setHeight(h uint64) {
	f.mu.Lock()
	f.height = h
	f.mu.Unlock()
}

func fastBackoff() retry.Backoff {
	return retry.Backoff{MaxRetries: 0, BaseDelay: time.Millisecond, Multiplier: 2}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestPollerCursorMonotonicAcrossCycles(t *testing.T) {
	chain := &fakeChain{
		height: 250,
		logs: map[uint64][]model.RawLogRecord{
			5:   {{BlockNumber: 5, LogIndex: 0}},
			150: {{BlockNumber: 150, LogIndex: 0}, {BlockNumber: 150, LogIndex: 1}},
			250: {{BlockNumber: 250, LogIndex: 2}},
		},
	}

	p := New(Config{
		BatchSize: 100,
		Interval:  time.Millisecond,
		Backoff:   fastBackoff(),
	}, chain, nil)

	var mu sync.Mutex
	var seen []uint64
	handler := func(_ context.Context, blockNumber uint64, logs []model.RawLogRecord) error {
		mu.Lock()
		seen = append(seen, blockNumber)
		mu.Unlock()
		if len(logs) == 0 {
			t.Errorf("handler invoked with no logs for block %d", blockNumber)
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), handler) }()

	waitFor(t, func() bool { return p.Position() == 251 })

	// The chain grows; the cursor must follow and never move backwards.
	chain.setHeight(400)
	waitFor(t, func() bool { return p.Position() == 401 })

	p.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected 3 handled blocks, got %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("blocks not strictly ascending: %v", seen)
		}
	}
}

func TestPollerBatchSplitting(t *testing.T) {
	chain := &fakeChain{height: 250}

	p := New(Config{
		BatchSize: 100,
		Interval:  time.Millisecond,
		Backoff:   fastBackoff(),
	}, chain, nil)

	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), func(context.Context, uint64, []model.RawLogRecord) error {
			return nil
		})
	}()

	waitFor(t, func() bool { return p.Position() == 251 })
	p.Stop()
	<-done

	chain.mu.Lock()
	calls := append([]blockRange(nil), chain.rangeCalls...)
	chain.mu.Unlock()

	want := []blockRange{{From: 0, To: 99}, {From: 100, To: 199}, {From: 200, To: 250}}
	if len(calls) < 3 {
		t.Fatalf("expected at least 3 range fetches, got %+v", calls)
	}
	for i, w := range want {
		if calls[i] != w {
			t.Fatalf("batch %d mismatch: %+v != %+v", i, calls[i], w)
		}
	}
}

func TestPollerStopsAfterConsecutiveFailures(t *testing.T) {
	sentinel := errors.New("rpc down")
	chain := &fakeChain{heightErr: sentinel}

	p := New(Config{
		Interval:               time.Millisecond,
		Backoff:                fastBackoff(),
		MaxConsecutiveFailures: 3,
	}, chain, nil)

	err := p.Run(context.Background(), func(context.Context, uint64, []model.RawLogRecord) error {
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the last cycle error, got %v", err)
	}
	if chain.heightCalls != 3 {
		t.Fatalf("expected 3 failed cycles, got %d height calls", chain.heightCalls)
	}
	if p.Failures() != 3 {
		t.Fatalf("failure count mismatch: %d", p.Failures())
	}
}

func TestPollerFailureCountResetsOnSuccess(t *testing.T) {
	sentinel := errors.New("flaky")
	chain := &fakeChain{height: 10, heightErr: sentinel}

	p := New(Config{
		Interval:               time.Millisecond,
		Backoff:                fastBackoff(),
		MaxConsecutiveFailures: 5,
	}, chain, nil)

	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), func(context.Context, uint64, []model.RawLogRecord) error {
			return nil
		})
	}()

	waitFor(t, func() bool { return p.Failures() >= 2 })

	chain.mu.Lock()
	chain.heightErr = nil
	chain.mu.Unlock()

	waitFor(t, func() bool { return p.Failures() == 0 && p.Position() == 11 })

	p.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run returned error after recovery: %v", err)
	}
}

func TestPollerHandlerErrorDoesNotAdvanceCursor(t *testing.T) {
	sentinel := errors.New("persistence failed")
	chain := &fakeChain{
		height: 10,
		logs: map[uint64][]model.RawLogRecord{
			4: {{BlockNumber: 4}},
		},
	}

	p := New(Config{
		StartBlock:             2,
		Interval:               time.Millisecond,
		Backoff:                fastBackoff(),
		MaxConsecutiveFailures: 2,
	}, chain, nil)

	err := p.Run(context.Background(), func(context.Context, uint64, []model.RawLogRecord) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected handler error to surface, got %v", err)
	}
	if p.Position() != 2 {
		t.Fatalf("cursor advanced past a failed batch: %d", p.Position())
	}
}

func TestResumeStart(t *testing.T) {
	cases := []struct {
		name       string
		configured uint64
		lastStored uint64
		stored     bool
		want       uint64
	}{
		{"empty store uses configured start", 100, 0, false, 100},
		{"stored rows resume one past them", 100, 250, true, 251},
		{"configured start ahead of store wins", 500, 250, true, 500},
		{"resume from genesis-adjacent store", 0, 0, true, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResumeStart(tc.configured, tc.lastStored, tc.stored); got != tc.want {
				t.Fatalf("expected start %d, got %d", tc.want, got)
			}
		})
	}
}
