// Package postgres implements the event store on pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventscope/internal/model"
	"eventscope/internal/store"
)

// db is the subset of pgxpool.Pool the store uses.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var _ db = (*pgxpool.Pool)(nil)

// Store provides Postgres persistence for classified chain events.
type Store struct {
	pool db
}

var _ store.Store = (*Store)(nil)

// NewStore connects to Postgres and verifies the connection.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const insertAuditRow = `
	INSERT INTO event_logs (block_number, block_time, tx_hash, log_index, address, topics, data)
	VALUES ($1, to_timestamp($2), $3, $4, $5, $6, $7)
	ON CONFLICT (tx_hash, log_index) DO NOTHING
`

const insertTransferRow = `
	INSERT INTO transfers (block_number, block_time, tx_hash, log_index, token, sender, recipient, value)
	VALUES ($1, to_timestamp($2), $3, $4, $5, $6, $7, $8)
	ON CONFLICT (tx_hash, log_index) DO NOTHING
`

const insertSwapRow = `
	INSERT INTO swaps (block_number, block_time, tx_hash, log_index, pool, sender, recipient,
		amount0_in, amount1_in, amount0_out, amount1_out)
	VALUES ($1, to_timestamp($2), $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (tx_hash, log_index) DO NOTHING
`

// SaveBlockEvents persists one block's decoded events in a single
// transaction. Classified events get an audit row plus a typed row; unknown
// events keep their original topics and payload in the audit row only.
// Audit rows are written in input order. An empty batch still commits.
// Re-ingesting an already committed block is a no-op: every insert skips
// rows that collide on (tx_hash, log_index).
func (s *Store) SaveBlockEvents(ctx context.Context, blockNumber, blockTime uint64, events []model.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, event := range events {
		if err := saveEvent(ctx, tx, blockNumber, blockTime, event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func saveEvent(ctx context.Context, tx pgx.Tx, blockNumber, blockTime uint64, event model.Event) error {
	switch e := event.(type) {
	case model.TransferEvent:
		if _, err := tx.Exec(ctx, insertAuditRow,
			int64(blockNumber), int64(blockTime), e.TxHash, int64(e.LogIndex), e.Token, []string{}, "",
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertTransferRow,
			int64(blockNumber), int64(blockTime), e.TxHash, int64(e.LogIndex),
			e.Token, e.From, e.To, e.Value,
		)
		return err

	case model.SwapEvent:
		if _, err := tx.Exec(ctx, insertAuditRow,
			int64(blockNumber), int64(blockTime), e.TxHash, int64(e.LogIndex), e.Pool, []string{}, "",
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertSwapRow,
			int64(blockNumber), int64(blockTime), e.TxHash, int64(e.LogIndex),
			e.Pool, e.Sender, e.Recipient,
			e.Amount0In, e.Amount1In, e.Amount0Out, e.Amount1Out,
		)
		return err

	case model.UnknownEvent:
		topics := e.Raw.Topics
		if topics == nil {
			topics = []string{}
		}
		_, err := tx.Exec(ctx, insertAuditRow,
			int64(blockNumber), int64(blockTime), e.Raw.TxHash, int64(e.Raw.LogIndex),
			e.Raw.Address, topics, e.Raw.Data,
		)
		return err

	default:
		return fmt.Errorf("unsupported event kind: %s", event.Kind())
	}
}

const selectTransfers = `
	SELECT block_number, block_time, tx_hash, log_index, token, sender, recipient, value::text
	FROM transfers
`

const selectSwaps = `
	SELECT block_number, block_time, tx_hash, log_index, pool, sender, recipient,
		amount0_in::text, amount1_in::text, amount0_out::text, amount1_out::text
	FROM swaps
`

// RecentTransfers returns the newest typed transfers, block number descending.
func (s *Store) RecentTransfers(ctx context.Context, limit int) ([]store.TransferRow, error) {
	rows, err := s.pool.Query(ctx,
		selectTransfers+` ORDER BY block_number DESC, log_index DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanTransfers(rows)
}

// TransfersByAddress returns transfers where the address is the sender or
// the recipient.
func (s *Store) TransfersByAddress(ctx context.Context, address string, limit int) ([]store.TransferRow, error) {
	rows, err := s.pool.Query(ctx,
		selectTransfers+` WHERE sender = $1 OR recipient = $1
		 ORDER BY block_number DESC, log_index DESC LIMIT $2`, address, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanTransfers(rows)
}

// RecentSwaps returns the newest typed swaps, block number descending.
func (s *Store) RecentSwaps(ctx context.Context, limit int) ([]store.SwapRow, error) {
	rows, err := s.pool.Query(ctx,
		selectSwaps+` ORDER BY block_number DESC, log_index DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanSwaps(rows)
}

// SwapsByPool returns swaps emitted by one pool address.
func (s *Store) SwapsByPool(ctx context.Context, pool string, limit int) ([]store.SwapRow, error) {
	rows, err := s.pool.Query(ctx,
		selectSwaps+` WHERE pool = $1 ORDER BY block_number DESC, log_index DESC LIMIT $2`,
		pool, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanSwaps(rows)
}

// RecentEvents merges both typed tables into one feed ordered by block
// number descending with log index as the tie-break.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]store.EventRow, error) {
	limit = clampLimit(limit)
	transfers, err := s.RecentTransfers(ctx, limit)
	if err != nil {
		return nil, err
	}
	swaps, err := s.RecentSwaps(ctx, limit)
	if err != nil {
		return nil, err
	}
	return store.MergeRecent(transfers, swaps, limit), nil
}

// HighestBlock returns the highest block number in the audit trail. ok is
// false when no rows have been written yet. Startup uses this to resume the
// scan cursor past already committed blocks.
func (s *Store) HighestBlock(ctx context.Context) (block uint64, ok bool, err error) {
	var max *int64
	if err := s.pool.QueryRow(ctx, `SELECT max(block_number) FROM event_logs`).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("highest block: %w", err)
	}
	if max == nil {
		return 0, false, nil
	}
	return uint64(*max), true, nil
}

// Stats returns aggregate row counts plus the highest audited block.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	var highest int64
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM event_logs),
			(SELECT count(*) FROM transfers),
			(SELECT count(*) FROM swaps),
			(SELECT coalesce(max(block_number), 0) FROM event_logs)
	`)
	if err := row.Scan(&stats.TotalEvents, &stats.TotalTransfers, &stats.TotalSwaps, &highest); err != nil {
		return store.Stats{}, err
	}
	stats.HighestBlock = uint64(highest)
	return stats, nil
}

func scanTransfers(rows pgx.Rows) ([]store.TransferRow, error) {
	defer rows.Close()
	out := make([]store.TransferRow, 0)
	for rows.Next() {
		var (
			r           store.TransferRow
			blockNumber int64
			logIndex    int64
			blockTime   time.Time
		)
		if err := rows.Scan(&blockNumber, &blockTime, &r.TxHash, &logIndex,
			&r.Token, &r.From, &r.To, &r.Value); err != nil {
			return nil, err
		}
		r.BlockNumber = uint64(blockNumber)
		r.LogIndex = uint64(logIndex)
		r.BlockTime = blockTime.UTC().Format(time.RFC3339)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSwaps(rows pgx.Rows) ([]store.SwapRow, error) {
	defer rows.Close()
	out := make([]store.SwapRow, 0)
	for rows.Next() {
		var (
			r           store.SwapRow
			blockNumber int64
			logIndex    int64
			blockTime   time.Time
		)
		if err := rows.Scan(&blockNumber, &blockTime, &r.TxHash, &logIndex,
			&r.Pool, &r.Sender, &r.Recipient,
			&r.Amount0In, &r.Amount1In, &r.Amount0Out, &r.Amount1Out); err != nil {
			return nil, err
		}
		r.BlockNumber = uint64(blockNumber)
		r.LogIndex = uint64(logIndex)
		r.BlockTime = blockTime.UTC().Format(time.RFC3339)
		out = append(out, r)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	const (
		defaultLimit = 50
		maxLimit     = 500
	)
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
