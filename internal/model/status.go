package model

// IndexerStatus is the externally visible snapshot of indexer state. The
// 64-bit fields marshal as strings to stay safe for JSON consumers.
type IndexerStatus struct {
	IsIndexing      bool   `json:"is_indexing"`
	LastBlockNumber uint64 `json:"last_block_number,string"`
	ErrorCount      int    `json:"error_count"`
	LastError       string `json:"last_error,omitempty"`
	UptimeSeconds   int64  `json:"uptime_seconds,string"`
}
