package poller

import (
	"reflect"
	"testing"

	"eventscope/internal/model"
)

func TestSplitRange(t *testing.T) {
	got := splitRange(100, 105, 2)
	want := []blockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got := splitRange(5, 5, 10)
	want := []blockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestGroupByBlockOrdering(t *testing.T) {
	logs := []model.RawLogRecord{
		{BlockNumber: 12, LogIndex: 0},
		{BlockNumber: 10, LogIndex: 3},
		{BlockNumber: 12, LogIndex: 1},
		{BlockNumber: 11, LogIndex: 0},
		{BlockNumber: 10, LogIndex: 5},
	}

	groups := groupByBlock(logs)

	if len(groups) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(groups))
	}
	if groups[0].Number != 10 || groups[1].Number != 11 || groups[2].Number != 12 {
		t.Fatalf("blocks not ascending: %+v", groups)
	}
	// Relative order within a block must match the input order.
	if groups[0].Logs[0].LogIndex != 3 || groups[0].Logs[1].LogIndex != 5 {
		t.Fatalf("log order not preserved: %+v", groups[0].Logs)
	}
	if groups[2].Logs[0].LogIndex != 0 || groups[2].Logs[1].LogIndex != 1 {
		t.Fatalf("log order not preserved: %+v", groups[2].Logs)
	}
}

func TestGroupByBlockEmpty(t *testing.T) {
	if got := groupByBlock(nil); len(got) != 0 {
		t.Fatalf("expected no groups, got %+v", got)
	}
}
