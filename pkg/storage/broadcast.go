package storage

import (
	"sync"
)

// DefaultSubscriberBuffer is the channel buffer used when Subscribe is
// called with a non-positive buffer size.
const DefaultSubscriberBuffer = 64

// Broadcaster fans storage events out to subscribers. Delivery is
// best-effort: a subscriber that stops draining its channel loses
// events rather than blocking publishers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	origin string
	ch     chan Event
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]*subscriber),
	}
}

// Subscribe registers a listener for events. Events whose Origin equals
// origin are not delivered, so a context never observes its own writes.
// The returned cancel func removes the subscription and closes the
// channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(origin string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{origin: origin, ch: make(chan Event, buffer)}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber except the event's origin.
// Sends never block; a full subscriber channel drops the event.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.origin != "" && sub.origin == ev.Origin {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Subscriber is not keeping up; drop.
		}
	}
}

// SubscriberCount returns the number of active subscriptions. This is
// for monitoring/testing purposes.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the broadcaster down and closes every subscriber channel.
func (b *Broadcaster) Close() {
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
