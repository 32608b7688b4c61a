package poller

import (
	"sort"

	"eventscope/internal/model"
)

// blockRange is an inclusive block range.
type blockRange struct {
	From uint64
	To   uint64
}

// splitRange splits [from, to] into consecutive batches of at most batchSize
// blocks. from must be <= to and batchSize > 0; the poller guarantees both.
func splitRange(from, to, batchSize uint64) []blockRange {
	ranges := make([]blockRange, 0, (to-from)/batchSize+1)
	for start := from; start <= to; {
		end := to
		if remaining := to - start + 1; remaining > batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, blockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return ranges
}

// blockLogs holds one block's logs in the order the node returned them.
type blockLogs struct {
	Number uint64
	Logs   []model.RawLogRecord
}

// groupByBlock buckets logs by block number, preserving relative order
// within each block, and returns the blocks in ascending number order.
func groupByBlock(logs []model.RawLogRecord) []blockLogs {
	byBlock := make(map[uint64][]model.RawLogRecord)
	numbers := make([]uint64, 0)
	for _, log := range logs {
		if _, seen := byBlock[log.BlockNumber]; !seen {
			numbers = append(numbers, log.BlockNumber)
		}
		byBlock[log.BlockNumber] = append(byBlock[log.BlockNumber], log)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	out := make([]blockLogs, 0, len(numbers))
	for _, number := range numbers {
		out = append(out, blockLogs{Number: number, Logs: byBlock[number]})
	}
	return out
}
