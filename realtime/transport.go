package realtime

import (
	"context"
	"sync"
)

// Transport provides a best-effort push stream of change events for a named
// channel. It is designed for cache invalidation signals rather than durable
// delivery: implementations may drop events when subscribers are slow or
// disconnected.
//
// Subscribe returns the event channel and a stop function; callers must call
// stop exactly once to release the underlying channel.
type Transport interface {
	Subscribe(ctx context.Context, channel string) (<-chan ChangeEvent, func(), error)
}

// Notifier is a Transport that can also publish events. The writer side
// (mutations, server-side jobs) calls Notify after changing the source of
// truth; the reader side depends only on Transport.
type Notifier interface {
	Transport

	Notify(ctx context.Context, channel string, ev ChangeEvent) error
}

// subscriberBuffer bounds per-subscriber queues; a full buffer drops the
// event rather than blocking the publisher.
const subscriberBuffer = 16

// MemoryNotifier is an in-process Notifier used in tests and as the default
// transport when no push backend is configured.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string]map[int]chan ChangeEvent
	next int
}

var _ Notifier = (*MemoryNotifier)(nil)

// NewMemoryNotifier creates an empty in-process notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[int]chan ChangeEvent)}
}

// Subscribe implements Transport.
func (n *MemoryNotifier) Subscribe(ctx context.Context, channel string) (<-chan ChangeEvent, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++

	ch := make(chan ChangeEvent, subscriberBuffer)
	if n.subs[channel] == nil {
		n.subs[channel] = make(map[int]chan ChangeEvent)
	}
	n.subs[channel][id] = ch

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if set, ok := n.subs[channel]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(n.subs, channel)
				}
			}
			close(ch)
		})
	}

	return ch, stop, nil
}

// Notify implements Notifier. Slow subscribers lose the event.
func (n *MemoryNotifier) Notify(ctx context.Context, channel string, ev ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[channel] {
		select {
		case ch <- ev:
		default:
		}
	}

	return nil
}

// SubscriberCount reports open subscriptions for a channel; test helper.
func (n *MemoryNotifier) SubscriberCount(channel string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[channel])
}
