package store

import "sort"

// MergeRecent interleaves transfer and swap rows into one feed ordered by
// block number descending. Same-block ties break on log index descending so
// the combined ordering stays deterministic; transfers sort before swaps if
// both collide on the same log index, which cannot happen for real logs.
func MergeRecent(transfers []TransferRow, swaps []SwapRow, limit int) []EventRow {
	rows := make([]EventRow, 0, len(transfers)+len(swaps))
	for i := range transfers {
		t := transfers[i]
		rows = append(rows, EventRow{
			Kind:        "transfer",
			BlockNumber: t.BlockNumber,
			LogIndex:    t.LogIndex,
			Transfer:    &t,
		})
	}
	for i := range swaps {
		s := swaps[i]
		rows = append(rows, EventRow{
			Kind:        "swap",
			BlockNumber: s.BlockNumber,
			LogIndex:    s.LogIndex,
			Swap:        &s,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].BlockNumber != rows[j].BlockNumber {
			return rows[i].BlockNumber > rows[j].BlockNumber
		}
		return rows[i].LogIndex > rows[j].LogIndex
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
