// Package broadcaster fans accepted audit events out to subscribed clients.
package broadcaster

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jamesainslie/keepsake/pkg/keepsake/filter"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// BufferSize is the per-subscriber channel capacity.
const BufferSize = 100

// Subscriber represents a client subscribed to audit events.
type Subscriber struct {
	ID     string
	Root   string
	Kinds  []types.EventKind
	Events chan types.AuditEvent

	dropped atomic.Int64
}

// Dropped returns how many events were discarded because the channel was full.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscriber) wants(ev types.AuditEvent) bool {
	if s.Root != "" && !filter.IsUnder(ev.Path, s.Root) {
		return false
	}
	if len(s.Kinds) == 0 {
		return true
	}
	for _, k := range s.Kinds {
		if k == ev.Kind {
			return true
		}
	}
	return false
}

// Broadcaster manages subscribers and distributes audit events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber for events under root. An empty root
// matches everything; no kinds means all kinds. It returns nil after Close.
func (b *Broadcaster) Subscribe(root string, kinds ...types.EventKind) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:     uuid.New().String(),
		Root:   root,
		Kinds:  kinds,
		Events: make(chan types.AuditEvent, BufferSize),
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Publish sends ev to every matching subscriber without blocking.
func (b *Broadcaster) Publish(ev types.AuditEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.Events <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
