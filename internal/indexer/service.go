// Package indexer wires the poller, decoder, store, and bus into the
// per-block pipeline and owns the externally visible indexing state.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"eventscope/internal/bus"
	"eventscope/internal/decoder"
	"eventscope/internal/metrics"
	"eventscope/internal/model"
	"eventscope/internal/poller"
	"eventscope/internal/retry"
	"eventscope/internal/store"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice. A Service
	// instance runs at most once; stopped and faulted are terminal.
	ErrAlreadyStarted = errors.New("indexer: already started")
)

// BlockSource drives per-block handling; satisfied by *poller.Poller.
type BlockSource interface {
	Run(ctx context.Context, handler poller.Handler) error
	Stop()
}

// TimestampSource resolves block timestamps for decoded events.
type TimestampSource interface {
	BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error)
}

// Service orchestrates the ingestion pipeline: for each block it decodes
// every log, persists the decoded set atomically, publishes each event to
// the bus strictly after the commit, and advances its state snapshot.
type Service struct {
	source  BlockSource
	chain   TimestampSource
	decoder *decoder.Decoder
	store   store.Writer
	bus     *bus.Bus
	backoff retry.Backoff
	logger  *zap.Logger

	mu        sync.Mutex
	started   bool
	indexing  bool
	lastBlock uint64
	errCount  int
	lastErr   error
	startedAt time.Time
	done      chan struct{}
}

// New builds a Service with its collaborators injected.
func New(source BlockSource, chain TimestampSource, dec *decoder.Decoder,
	writer store.Writer, eventBus *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:  source,
		chain:   chain,
		decoder: dec,
		store:   writer,
		bus:     eventBus,
		backoff: retry.Default(),
		logger:  logger,
	}
}

// Start launches the indexing loop in the background. The loop runs until
// Stop is called, the context is cancelled, or the poller gives up after
// repeated cycle failures; the last case leaves the service faulted, which
// is observable through Status and recovered only by an external restart.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.indexing = true
	s.startedAt = time.Now()
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("indexing started")
	go s.run(ctx)
	return nil
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	err := s.source.Run(ctx, s.handleBlock)

	s.mu.Lock()
	s.indexing = false
	if err != nil && !errors.Is(err, context.Canceled) {
		s.lastErr = err
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("indexing loop faulted", zap.Error(err))
		return
	}
	s.logger.Info("indexing loop stopped")
}

// Stop asks the poller to finish its current cycle and waits for the loop
// to exit. Calling Stop on a service that never started is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	started := s.started
	done := s.done
	s.mu.Unlock()

	if !started {
		return
	}
	s.source.Stop()
	<-done
}

func (s *Service) handleBlock(ctx context.Context, blockNumber uint64, logs []model.RawLogRecord) error {
	if err := s.processBlock(ctx, blockNumber, logs); err != nil {
		s.mu.Lock()
		s.errCount++
		s.lastErr = err
		s.mu.Unlock()

		metrics.BlockErrors.Inc()
		return err
	}
	return nil
}

func (s *Service) processBlock(ctx context.Context, blockNumber uint64, logs []model.RawLogRecord) error {
	var blockTime uint64
	err := retry.Do(ctx, s.backoff, func(ctx context.Context) error {
		var err error
		blockTime, err = s.chain.BlockTimestamp(ctx, blockNumber)
		return err
	})
	if err != nil {
		return fmt.Errorf("block timestamp %d: %w", blockNumber, err)
	}

	events := make([]model.Event, 0, len(logs))
	for _, raw := range logs {
		event := s.decoder.Decode(raw, blockTime)
		events = append(events, event)
		metrics.EventsDecoded.WithLabelValues(string(event.Kind())).Inc()
	}

	start := time.Now()
	if err := s.store.SaveBlockEvents(ctx, blockNumber, blockTime, events); err != nil {
		return fmt.Errorf("save block %d: %w", blockNumber, err)
	}
	metrics.SaveDuration.Observe(time.Since(start).Seconds())

	// Publish only after the commit, preserving input order.
	for _, event := range events {
		s.bus.Publish(event)
	}

	s.mu.Lock()
	if blockNumber > s.lastBlock {
		s.lastBlock = blockNumber
	}
	s.mu.Unlock()

	metrics.BlocksProcessed.Inc()
	s.logger.Debug("block processed",
		zap.Uint64("block", blockNumber),
		zap.Int("events", len(events)),
	)
	return nil
}

// Status reports the snapshot consumed by the query API.
func (s *Service) Status() model.IndexerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := model.IndexerStatus{
		IsIndexing:      s.indexing,
		LastBlockNumber: s.lastBlock,
		ErrorCount:      s.errCount,
	}
	if !s.startedAt.IsZero() {
		status.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}
