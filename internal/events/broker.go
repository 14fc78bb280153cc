package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Feeds group topology events by entity kind.
const (
	FeedWindow  = "window"
	FeedSpace   = "space"
	FeedTab     = "tab"
	FeedGroup   = "group"
	FeedSession = "session"
	FeedProfile = "profile"
)

// Event describes one topology change.
type Event struct {
	Feed     string    `json:"feed"`
	Type     string    `json:"type"`
	WindowID int       `json:"window_id,omitempty"`
	SpaceID  string    `json:"space_id,omitempty"`
	TabID    int       `json:"tab_id,omitempty"`
	GroupID  int       `json:"group_id,omitempty"`
	Subject  string    `json:"subject,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher accepts topology events. Implementations must not block.
type Publisher interface {
	Publish(evt Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Broker fans out events to every subscriber.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	published   atomic.Int64
	dropped     atomic.Int64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. The returned channel is buffered; slow
// consumers have events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends evt to all subscribers without blocking.
func (b *Broker) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.published.Add(1)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Consume subscribes and calls fn for every event until ctx is done.
// It blocks; run it in its own goroutine.
func (b *Broker) Consume(ctx context.Context, fn func(Event)) {
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fn(evt)
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
