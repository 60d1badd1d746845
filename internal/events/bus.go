package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/solswap/swap-api/internal/types"
)

// allOrders is the key for subscribers that want every status update.
const allOrders = "*"

const defaultBuffer = 16

// Bus is an in-process publish/subscribe registry for order status events,
// keyed by order id plus a global channel. Delivery is at-most-once per live
// subscriber; a subscriber whose buffer is full is dropped rather than
// awaited, so a slow consumer can never block publication to others.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// Subscription is a handle to a single subscriber's event channel.
type Subscription struct {
	bus  *Bus
	key  string
	ch   chan types.StatusEvent
	once sync.Once
}

// Events returns the channel status events are delivered on. The channel is
// closed when the subscription ends, whether by Unsubscribe, by the bus
// shutting down, or by the subscriber falling behind.
func (s *Subscription) Events() <-chan types.StatusEvent {
	return s.ch
}

// Unsubscribe detaches the subscriber and closes its channel. It is safe to
// call multiple times and from any goroutine.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	s.bus.detach(s)
	s.bus.mu.Unlock()
	s.close()
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for a single order's status events.
func (b *Bus) Subscribe(orderID string) *Subscription {
	return b.subscribe(orderID)
}

// SubscribeAll registers a subscriber for every order's status events.
func (b *Bus) SubscribeAll() *Subscription {
	return b.subscribe(allOrders)
}

func (b *Bus) subscribe(key string) *Subscription {
	sub := &Subscription{
		bus: b,
		key: key,
		ch:  make(chan types.StatusEvent, defaultBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.close()
		return sub
	}

	set, ok := b.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[key] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish fans an event out to the order's subscribers and to the global
// subscribers. The send never blocks: a subscriber with a full buffer is
// dropped and its channel closed.
func (b *Bus) Publish(event types.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.fanOut(event.OrderID, event)
	b.fanOut(allOrders, event)
}

func (b *Bus) fanOut(key string, event types.StatusEvent) {
	for sub := range b.subs[key] {
		select {
		case sub.ch <- event:
		default:
			log.Warn().
				Str("order_id", event.OrderID).
				Str("status", string(event.Status)).
				Msg("dropping slow event subscriber")
			b.detach(sub)
			sub.close()
		}
	}
}

// detach removes a subscription from the registry. Caller holds b.mu.
func (b *Bus) detach(sub *Subscription) {
	set, ok := b.subs[sub.key]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.key)
	}
}

// Close drops every subscription and rejects further publishes. Used during
// process shutdown; live subscribers see their channels close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for key, set := range b.subs {
		for sub := range set {
			sub.close()
		}
		delete(b.subs, key)
	}
}
