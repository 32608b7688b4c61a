package model

// Kind identifies the classified shape of a decoded event.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindSwap     Kind = "swap"
	KindUnknown  Kind = "unknown"
)

// Provenance ties a decoded event back to the log that produced it.
type Provenance struct {
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index,string"`
	BlockNumber uint64 `json:"block_number,string"`
	BlockTime   uint64 `json:"block_time,string"`
}

// Event is the tagged union over transfer, swap, and unknown records.
// The decoder produces exactly one variant per raw log.
type Event interface {
	Kind() Kind
}

// TransferEvent is an ERC-20 style token transfer. Value is a base-10
// decimal string so amounts above 2^53 survive JSON round-trips.
type TransferEvent struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Token string `json:"token"`
	Provenance
}

func (TransferEvent) Kind() Kind { return KindTransfer }

// SwapEvent is an AMM swap normalized to four directional decimal-string
// amounts, regardless of whether the source pool was V2 or V3 shaped.
type SwapEvent struct {
	Pool       string `json:"pool"`
	Sender     string `json:"sender"`
	Recipient  string `json:"recipient"`
	Amount0In  string `json:"amount0_in"`
	Amount1In  string `json:"amount1_in"`
	Amount0Out string `json:"amount0_out"`
	Amount1Out string `json:"amount1_out"`
	Provenance
}

func (SwapEvent) Kind() Kind { return KindSwap }

// UnknownEvent wraps a log that matched no known schema. The raw record is
// carried through untouched so nothing is lost before persistence.
type UnknownEvent struct {
	Raw RawLogRecord `json:"raw"`
}

func (UnknownEvent) Kind() Kind { return KindUnknown }
