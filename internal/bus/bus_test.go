package bus

import (
	"testing"

	"eventscope/internal/model"
)

func transfer(value string) model.Event {
	return model.TransferEvent{Value: value}
}

func TestPublishRegistrationOrder(t *testing.T) {
	b := New(nil)

	var order []string
	b.Subscribe(func(model.Event) { order = append(order, "first") })
	b.Subscribe(func(model.Event) { order = append(order, "second") })
	b.Subscribe(func(model.Event) { order = append(order, "third") })

	b.Publish(transfer("1"))

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("delivery order mismatch: %v", order)
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	b := New(nil)

	calls := 0
	cancel := b.Subscribe(func(model.Event) { calls++ })

	b.Publish(transfer("1"))
	cancel()
	cancel() // idempotent
	b.Publish(transfer("2"))

	if calls != 1 {
		t.Fatalf("expected 1 delivery, got %d", calls)
	}
	if b.Len() != 0 {
		t.Fatalf("subscriber not removed: %d left", b.Len())
	}
}

func TestCancelDuringDeliveryIsSafe(t *testing.T) {
	b := New(nil)

	var selfCancel func()
	selfCalls := 0
	selfCancel = b.Subscribe(func(model.Event) {
		selfCalls++
		selfCancel()
	})

	otherCalls := 0
	b.Subscribe(func(model.Event) { otherCalls++ })

	b.Publish(transfer("1"))
	b.Publish(transfer("2"))

	if selfCalls != 1 {
		t.Fatalf("self-cancelling subscriber delivered %d times", selfCalls)
	}
	if otherCalls != 2 {
		t.Fatalf("second subscriber missed events: %d", otherCalls)
	}
}

func TestSubscribeDuringDelivery(t *testing.T) {
	b := New(nil)

	lateCalls := 0
	b.Subscribe(func(model.Event) {
		if b.Len() == 1 {
			b.Subscribe(func(model.Event) { lateCalls++ })
		}
	})

	b.Publish(transfer("1"))
	b.Publish(transfer("2"))

	if lateCalls != 1 {
		t.Fatalf("late subscriber expected 1 event, got %d", lateCalls)
	}
}

func TestPanickingSubscriberIsContained(t *testing.T) {
	b := New(nil)

	b.Subscribe(func(model.Event) { panic("broken subscriber") })

	received := 0
	b.Subscribe(func(model.Event) { received++ })

	b.Publish(transfer("1"))
	b.Publish(transfer("2"))

	if received != 2 {
		t.Fatalf("well-behaved subscriber missed events: %d", received)
	}
}
