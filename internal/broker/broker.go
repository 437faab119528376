package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Subscription is one observer's private queue.
type Subscription struct {
	id string
	ch chan Message
}

// ID returns the subscriber id announced in the connected message.
func (s *Subscription) ID() string {
	return s.id
}

// Messages yields messages in publish order. The channel is closed when the
// subscriber is unsubscribed, dropped for falling behind, or the broker closes.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Broker is an in-process publish/subscribe fan-out. Publishing never blocks:
// a subscriber whose buffer is full is dropped.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	buffer int
	closed bool
}

// New creates a broker whose subscribers buffer up to bufferSize messages.
func New(bufferSize int) *Broker {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Broker{
		subs:   make(map[string]*Subscription),
		buffer: bufferSize,
	}
}

// Subscribe registers a new subscriber. Its first message is always TypeConnected.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan Message, b.buffer),
	}
	sub.ch <- NewMessage(ConnectedPayload{SubscriberID: sub.id})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	log.Debug().Str("subscriber", sub.id).Int("subscribers", len(b.subs)).Msg("broker: subscribed")
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. It is safe to
// call more than once and after the subscriber was dropped.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.subs[sub.id]; ok && cur == sub {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish delivers msg to every live subscriber without blocking.
func (b *Broker) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- msg:
		default:
			delete(b.subs, id)
			close(sub.ch)
			log.Warn().Str("subscriber", id).Msg("broker: subscriber buffer full, dropped")
		}
	}
}

// Len returns the number of live subscribers.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscriber. Later subscriptions are closed immediately.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
