package model

// RawLogRecord is the normalized representation of a chain log as emitted by
// the node. Hash-like fields and payload bytes are kept as 0x-prefixed hex.
type RawLogRecord struct {
	Address     string   `json:"address"`
	BlockNumber uint64   `json:"block_number,string"`
	BlockHash   string   `json:"block_hash"`
	Data        string   `json:"data"`
	Topics      []string `json:"topics"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint64   `json:"log_index,string"`
	TxIndex     uint64   `json:"tx_index,string"`
	Removed     bool     `json:"removed"`
}
