// Package bus provides a synchronous in-process fan-out of decoded events.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"eventscope/internal/model"
)

// Handler receives every event published after the subscription is made.
type Handler func(model.Event)

// Bus delivers published events to every subscriber in registration order.
// Delivery iterates over a snapshot of the subscriber set, so subscribing or
// cancelling during a publish never corrupts iteration.
type Bus struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs []*subscription
}

type subscription struct {
	fn Handler
}

// New builds a Bus. A nil logger falls back to a no-op logger.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn and returns a cancel func that removes it. Cancel
// is idempotent and safe to call from inside a delivery.
func (b *Bus) Subscribe(fn Handler) func() {
	sub := &subscription{fn: fn}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			// Full slice expression keeps published snapshots intact.
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every currently registered subscriber synchronously, in
// registration order. A panicking subscriber is contained and logged; the
// remaining subscribers still receive the event.
func (b *Bus) Publish(event model.Event) {
	b.mu.Lock()
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscription, event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				zap.Any("panic", r),
				zap.String("kind", string(event.Kind())),
			)
		}
	}()
	sub.fn(event)
}

// Len reports the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
