package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"eventscope/internal/model"
)

// Decoder classifies raw logs against the known event schemas. Decoding is
// total: a log that matches no schema comes back as an UnknownEvent, never
// as an error.
type Decoder struct {
	transfer abi.Event
	v2Swap   abi.Event
	v3Swap   abi.Event
}

// matcher attempts one schema. ok=false is a purely local negative result;
// the decoder just moves on to the next candidate.
type matcher func(raw model.RawLogRecord, blockTime uint64) (model.Event, bool)

// New builds a Decoder from the embedded ABIs.
func New() (*Decoder, error) {
	erc20, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	v2, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse v2 pair abi: %w", err)
	}
	v3, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse v3 pool abi: %w", err)
	}

	return &Decoder{
		transfer: erc20.Events["Transfer"],
		v2Swap:   v2.Events["Swap"],
		v3Swap:   v3.Events["Swap"],
	}, nil
}

// Decode maps one raw log to exactly one event variant. Schemas are tried
// in fixed order and the first structural plus signature match wins.
func (d *Decoder) Decode(raw model.RawLogRecord, blockTime uint64) model.Event {
	matchers := []matcher{d.matchTransfer, d.matchV2Swap, d.matchV3Swap}
	for _, match := range matchers {
		if event, ok := match(raw, blockTime); ok {
			return event
		}
	}
	return model.UnknownEvent{Raw: raw}
}

func (d *Decoder) matchTransfer(raw model.RawLogRecord, blockTime uint64) (model.Event, bool) {
	topics, ok := matchTopics(raw.Topics, d.transfer)
	if !ok {
		return nil, false
	}

	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.transfer.Inputs), topics); err != nil {
		return nil, false
	}

	values, err := unpackNonIndexed(d.transfer, raw.Data)
	if err != nil || len(values) != 1 {
		return nil, false
	}
	value, ok := asBigInt(values[0])
	if !ok {
		return nil, false
	}

	return model.TransferEvent{
		From:       indexed.From.Hex(),
		To:         indexed.To.Hex(),
		Value:      value.String(),
		Token:      raw.Address,
		Provenance: provenance(raw, blockTime),
	}, true
}

func (d *Decoder) matchV2Swap(raw model.RawLogRecord, blockTime uint64) (model.Event, bool) {
	topics, ok := matchTopics(raw.Topics, d.v2Swap)
	if !ok {
		return nil, false
	}

	var indexed struct {
		Sender common.Address
		To     common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.v2Swap.Inputs), topics); err != nil {
		return nil, false
	}

	values, err := unpackNonIndexed(d.v2Swap, raw.Data)
	if err != nil || len(values) != 4 {
		return nil, false
	}
	amounts := make([]*big.Int, 0, 4)
	for _, value := range values {
		amount, ok := asBigInt(value)
		if !ok {
			return nil, false
		}
		amounts = append(amounts, amount)
	}

	return model.SwapEvent{
		Pool:       raw.Address,
		Sender:     indexed.Sender.Hex(),
		Recipient:  indexed.To.Hex(),
		Amount0In:  unsignedAmount(amounts[0]),
		Amount1In:  unsignedAmount(amounts[1]),
		Amount0Out: unsignedAmount(amounts[2]),
		Amount1Out: unsignedAmount(amounts[3]),
		Provenance: provenance(raw, blockTime),
	}, true
}

func (d *Decoder) matchV3Swap(raw model.RawLogRecord, blockTime uint64) (model.Event, bool) {
	topics, ok := matchTopics(raw.Topics, d.v3Swap)
	if !ok {
		return nil, false
	}

	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.v3Swap.Inputs), topics); err != nil {
		return nil, false
	}

	values, err := unpackNonIndexed(d.v3Swap, raw.Data)
	if err != nil || len(values) != 5 {
		return nil, false
	}
	amount0, ok := asBigInt(values[0])
	if !ok {
		return nil, false
	}
	amount1, ok := asBigInt(values[1])
	if !ok {
		return nil, false
	}

	// V3 signs encode direction: negative flowed into the pool, positive
	// flowed out. Both sides are stored as unsigned decimal strings.
	amount0In, amount0Out := directionalAmounts(amount0)
	amount1In, amount1Out := directionalAmounts(amount1)

	return model.SwapEvent{
		Pool:       raw.Address,
		Sender:     indexed.Sender.Hex(),
		Recipient:  indexed.Recipient.Hex(),
		Amount0In:  amount0In,
		Amount1In:  amount1In,
		Amount0Out: amount0Out,
		Amount1Out: amount1Out,
		Provenance: provenance(raw, blockTime),
	}, true
}

// matchTopics verifies topic0 against the event signature and the topic
// count against the event's indexed arity, then parses the indexed topics.
func matchTopics(topics []string, event abi.Event) ([]common.Hash, bool) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, false
	}
	if !strings.EqualFold(topics[0], event.ID.Hex()) {
		return nil, false
	}

	out := make([]common.Hash, 0, indexedCount)
	for _, topic := range topics[1:] {
		data, err := hexutil.Decode(topic)
		if err != nil || len(data) != 32 {
			return nil, false
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, true
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	return event.Inputs.NonIndexed().Unpack(data)
}

func asBigInt(value interface{}) (*big.Int, bool) {
	b, ok := value.(*big.Int)
	if !ok || b == nil {
		return nil, false
	}
	return b, true
}

// unsignedAmount renders an already-unsigned amount, normalizing anything
// non-positive to "0".
func unsignedAmount(amount *big.Int) string {
	if amount == nil || amount.Sign() <= 0 {
		return "0"
	}
	return amount.String()
}

// directionalAmounts splits a signed V3 amount into its (in, out) pair.
func directionalAmounts(amount *big.Int) (in, out string) {
	switch {
	case amount == nil || amount.Sign() == 0:
		return "0", "0"
	case amount.Sign() < 0:
		return new(big.Int).Abs(amount).String(), "0"
	default:
		return "0", amount.String()
	}
}

func provenance(raw model.RawLogRecord, blockTime uint64) model.Provenance {
	return model.Provenance{
		TxHash:      raw.TxHash,
		LogIndex:    raw.LogIndex,
		BlockNumber: raw.BlockNumber,
		BlockTime:   blockTime,
	}
}
