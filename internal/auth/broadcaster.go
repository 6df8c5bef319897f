package auth

import (
	"sync"

	"go.uber.org/zap"
)

type Subscription struct {
	id uint64
	C  <-chan Event
	ch chan Event
}

// Broadcaster fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses that event.
type Broadcaster struct {
	log *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

func NewBroadcaster(log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{log: log, subs: make(map[uint64]chan Event)}
}

func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return &Subscription{C: ch, ch: ch}
	}

	b.nextID++
	b.subs[b.nextID] = ch
	return &Subscription{id: b.nextID, C: ch, ch: ch}
}

func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(ch)
	}
}

func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Debug("subscriber buffer full, event dropped",
				zap.Uint64("subscriber", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone. Later subscriptions receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.closed = true
}
