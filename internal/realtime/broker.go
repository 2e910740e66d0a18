// Package realtime fans slot change events out to subscribers watching one
// year of one kind, and optionally relays them between instances over Redis.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/oficios-registry/internal/slot"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Relay forwards locally published changes to other instances.
type Relay interface {
	Relay(ctx context.Context, change slot.Change) error
}

type topic struct {
	kind   string
	yearID string
}

// Broker delivers changes to the subscribers of their (kind, ano_id) topic.
// Delivery never blocks: a subscriber whose queue is full is dropped and its
// channel closed.
type Broker struct {
	mu     sync.Mutex
	subs   map[topic]map[uint64]*Subscription
	nextID uint64
	buffer int
	relay  Relay
	logger *slog.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithLogger sets the broker logger.
func WithLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBroker constructs an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:   make(map[topic]map[uint64]*Subscription),
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetRelay attaches the relay used by Publish. A nil relay disables relaying.
func (b *Broker) SetRelay(relay Relay) {
	b.mu.Lock()
	b.relay = relay
	b.mu.Unlock()
}

// Subscribe opens a feed for the slots of yearID.
func (b *Broker) Subscribe(kind slot.Kind, yearID string) *Subscription {
	key := topic{kind: kind.Name, yearID: yearID}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		topic:  key,
		events: make(chan slot.Change, b.buffer),
		broker: b,
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]*Subscription)
	}
	b.subs[key][sub.id] = sub
	return sub
}

// Publish delivers change locally and hands it to the relay, if any.
func (b *Broker) Publish(ctx context.Context, change slot.Change) {
	b.Deliver(change)

	b.mu.Lock()
	relay := b.relay
	b.mu.Unlock()
	if relay == nil {
		return
	}
	if err := relay.Relay(ctx, change); err != nil {
		b.logger.WarnContext(ctx, "realtime relay failed",
			"kind", change.Kind,
			"ano_id", change.YearID,
			"error", err,
		)
	}
}

// Deliver hands change to local subscribers only.
func (b *Broker) Deliver(change slot.Change) {
	key := topic{kind: change.Kind, yearID: change.YearID}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs[key] {
		select {
		case sub.events <- change:
		default:
			b.logger.Warn("realtime subscriber dropped",
				"kind", key.kind,
				"ano_id", key.yearID,
				"subscriber", id,
			)
			b.removeLocked(sub)
		}
	}
}

// Subscribers returns the number of open feeds for yearID.
func (b *Broker) Subscribers(kind slot.Kind, yearID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic{kind: kind.Name, yearID: yearID}])
}

func (b *Broker) removeLocked(sub *Subscription) {
	group := b.subs[sub.topic]
	if _, ok := group[sub.id]; !ok {
		return
	}
	delete(group, sub.id)
	if len(group) == 0 {
		delete(b.subs, sub.topic)
	}
	close(sub.events)
}

// Subscription is one open feed.
type Subscription struct {
	id     uint64
	topic  topic
	events chan slot.Change
	broker *Broker
}

// Events returns the feed channel. It is closed by Close or when the broker
// drops a lagging subscriber.
func (s *Subscription) Events() <-chan slot.Change {
	return s.events
}

// Close ends the feed. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	s.broker.removeLocked(s)
	s.broker.mu.Unlock()
}
