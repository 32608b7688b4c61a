// Package poller implements the forward-scanning block cursor that feeds the
// indexing pipeline.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"eventscope/internal/metrics"
	"eventscope/internal/model"
	"eventscope/internal/retry"
)

// ChainSource is the minimal chain read surface the poller drives.
type ChainSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	LogsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.RawLogRecord, error)
}

// Handler consumes all logs of one block. An error fails the whole cycle;
// the unadvanced range is re-fetched on the next cycle.
type Handler func(ctx context.Context, blockNumber uint64, logs []model.RawLogRecord) error

const (
	// DefaultBatchSize bounds the cost of a single log range query.
	DefaultBatchSize = 100

	// DefaultMaxConsecutiveFailures is how many cycles may fail in a row
	// before the loop stops permanently.
	DefaultMaxConsecutiveFailures = 10

	// DefaultInterval is the sleep between poll cycles.
	DefaultInterval = 5 * time.Second
)

// Config holds poller settings.
type Config struct {
	StartBlock             uint64
	BatchSize              uint64
	Interval               time.Duration
	Backoff                retry.Backoff
	MaxConsecutiveFailures int
}

// Poller advances a scan position over the chain in bounded batches,
// retrying chain queries and escalating after repeated cycle failures.
type Poller struct {
	chain  ChainSource
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	next     uint64
	failures int

	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a Poller. Zero config fields fall back to defaults.
func New(cfg Config, chain ChainSource, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if cfg.Backoff == (retry.Backoff{}) {
		cfg.Backoff = retry.Default()
	}

	return &Poller{
		chain:  chain,
		cfg:    cfg,
		logger: logger,
		next:   cfg.StartBlock,
		stop:   make(chan struct{}),
	}
}

// ResumeStart picks the scan start for a fresh run: one past the highest
// block already persisted, unless the configured start is further ahead.
// With nothing stored the configured start is used as-is.
func ResumeStart(configured, lastStored uint64, stored bool) uint64 {
	if !stored {
		return configured
	}
	if next := lastStored + 1; next > configured {
		return next
	}
	return configured
}

// Run drives poll cycles until Stop is called, the context is cancelled, or
// too many consecutive cycles fail. The stop flag is checked only between
// cycles; an in-flight cycle always finishes. On fatal exhaustion the last
// cycle error is returned unchanged.
func (p *Poller) Run(ctx context.Context, handler Handler) error {
	if p.chain == nil {
		return fmt.Errorf("chain source is nil")
	}
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}

	for {
		select {
		case <-p.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.cycle(ctx, handler); err != nil {
			p.mu.Lock()
			p.failures++
			failures := p.failures
			p.mu.Unlock()

			metrics.CycleFailures.Inc()
			p.logger.Warn("poll cycle failed",
				zap.Error(err),
				zap.Int("consecutive_failures", failures),
				zap.Int("max", p.cfg.MaxConsecutiveFailures),
			)
			if failures >= p.cfg.MaxConsecutiveFailures {
				p.logger.Error("stopping after repeated cycle failures", zap.Error(err))
				return err
			}
		} else {
			p.mu.Lock()
			p.failures = 0
			p.mu.Unlock()
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-p.stop:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stop requests a cooperative shutdown. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Position returns the next block the cursor will scan.
func (p *Poller) Position() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// Failures returns the current consecutive-cycle error count.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Poller) cycle(ctx context.Context, handler Handler) error {
	var latest uint64
	err := retry.Do(ctx, p.cfg.Backoff, func(ctx context.Context) error {
		var err error
		latest, err = p.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}

	next := p.Position()
	if latest < next {
		return nil // no new blocks yet
	}

	for _, batch := range splitRange(next, latest, p.cfg.BatchSize) {
		var logs []model.RawLogRecord
		err := retry.Do(ctx, p.cfg.Backoff, func(ctx context.Context) error {
			var err error
			logs, err = p.chain.LogsInRange(ctx, batch.From, batch.To)
			if err != nil {
				p.logger.Warn("fetch logs failed",
					zap.Error(err),
					zap.Uint64("from", batch.From),
					zap.Uint64("to", batch.To),
				)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("fetch logs [%d, %d]: %w", batch.From, batch.To, err)
		}

		for _, blk := range groupByBlock(logs) {
			if err := handler(ctx, blk.Number, blk.Logs); err != nil {
				return fmt.Errorf("handle block %d: %w", blk.Number, err)
			}
		}

		p.advance(batch.To + 1)
		p.logger.Debug("batch complete",
			zap.Uint64("from", batch.From),
			zap.Uint64("to", batch.To),
			zap.Int("logs", len(logs)),
		)
	}

	p.advance(latest + 1)
	return nil
}

// advance moves the cursor forward; it never goes backwards.
func (p *Poller) advance(next uint64) {
	p.mu.Lock()
	if next > p.next {
		p.next = next
	}
	p.mu.Unlock()
}
