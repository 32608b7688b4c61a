package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestToRawLogRecord(t *testing.T) {
	log := types.Log{
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      []common.Hash{common.HexToHash("0xaa"), common.HexToHash("0xbb")},
		Data:        []byte{0x01, 0x02},
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xcc"),
		TxIndex:     3,
		BlockHash:   common.HexToHash("0xdd"),
		Index:       7,
		Removed:     true,
	}

	record := toRawLogRecord(log)

	if record.Address != log.Address.Hex() {
		t.Fatalf("address mismatch: %s", record.Address)
	}
	if record.BlockNumber != 42 || record.LogIndex != 7 || record.TxIndex != 3 {
		t.Fatalf("position mismatch: %+v", record)
	}
	if record.Data != "0x0102" {
		t.Fatalf("data mismatch: %s", record.Data)
	}
	if len(record.Topics) != 2 || record.Topics[0] != log.Topics[0].Hex() {
		t.Fatalf("topics mismatch: %+v", record.Topics)
	}
	if !record.Removed {
		t.Fatalf("removed flag dropped")
	}
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x1111111111111111111111111111111111111111 ", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one address, got %d", len(got))
	}

	if _, err := ParseAddresses([]string{"not-an-address"}); err == nil {
		t.Fatalf("expected error for malformed address")
	}
}
