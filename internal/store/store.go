// Package store defines the persistence contract between the indexing
// pipeline and its read-side consumers.
package store

import (
	"context"

	"eventscope/internal/model"
)

// Writer persists one block's decoded events atomically: either every
// event's rows commit or none do.
type Writer interface {
	SaveBlockEvents(ctx context.Context, blockNumber, blockTime uint64, events []model.Event) error
}

// Reader serves the query API. All 64-bit numeric fields in returned rows
// marshal as strings and timestamps as RFC 3339 text.
type Reader interface {
	RecentTransfers(ctx context.Context, limit int) ([]TransferRow, error)
	RecentSwaps(ctx context.Context, limit int) ([]SwapRow, error)
	RecentEvents(ctx context.Context, limit int) ([]EventRow, error)
	TransfersByAddress(ctx context.Context, address string, limit int) ([]TransferRow, error)
	SwapsByPool(ctx context.Context, pool string, limit int) ([]SwapRow, error)
	Stats(ctx context.Context) (Stats, error)
}

// Store combines both halves of the contract.
type Store interface {
	Writer
	Reader
}

// TransferRow is a typed transfer as served by read queries.
type TransferRow struct {
	BlockNumber uint64 `json:"block_number,string"`
	BlockTime   string `json:"block_time"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index,string"`
	Token       string `json:"token"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

// SwapRow is a typed swap as served by read queries.
type SwapRow struct {
	BlockNumber uint64 `json:"block_number,string"`
	BlockTime   string `json:"block_time"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index,string"`
	Pool        string `json:"pool"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Amount0In   string `json:"amount0_in"`
	Amount1In   string `json:"amount1_in"`
	Amount0Out  string `json:"amount0_out"`
	Amount1Out  string `json:"amount1_out"`
}

// EventRow is one entry of the combined recent-events feed. Exactly one of
// Transfer or Swap is set, matching Kind.
type EventRow struct {
	Kind        string       `json:"kind"`
	BlockNumber uint64       `json:"block_number,string"`
	LogIndex    uint64       `json:"log_index,string"`
	Transfer    *TransferRow `json:"transfer,omitempty"`
	Swap        *SwapRow     `json:"swap,omitempty"`
}

// Stats aggregates table counts plus the highest block seen in the audit
// trail, zero when the trail is empty.
type Stats struct {
	TotalEvents    int64  `json:"total_events,string"`
	TotalTransfers int64  `json:"total_transfers,string"`
	TotalSwaps     int64  `json:"total_swaps,string"`
	HighestBlock   uint64 `json:"highest_block,string"`
}
