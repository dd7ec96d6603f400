package api

import (
	"sync"

	"driverstatus/internal/notify"
)

// EventBroker fans status change events out to live status streams, keyed by
// normalized plate.
type EventBroker interface {
	Subscribe(plate string) chan notify.Event
	Unsubscribe(plate string, ch chan notify.Event)
	Publish(plate string, evt notify.Event)
}

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan notify.Event]struct{} // plate -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan notify.Event]struct{}{}}
}

func (b *Broker) Subscribe(plate string) chan notify.Event {
	ch := make(chan notify.Event, 8)
	b.mu.Lock()
	if b.subs[plate] == nil {
		b.subs[plate] = map[chan notify.Event]struct{}{}
	}
	b.subs[plate][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(plate string, ch chan notify.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[plate]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, plate)
	}
	close(ch)
}

// Publish never blocks; a slow listener misses events.
func (b *Broker) Publish(plate string, evt notify.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[plate] {
		select {
		case ch <- evt:
		default:
		}
	}
}
