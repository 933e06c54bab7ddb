// Package eventbus decouples the scheduler core from its observers (history
// store, tests, operational tooling) with an in-memory fanout bus.
//
// Contract:
//   - Publish never blocks; a slow subscriber loses events, the publisher
//     does not stall a worker.
//   - Subscribers receive on buffered channels and must drain them.
//
// The scheduler publishes "task.*" and "pool.*" events; Data carries a small
// JSON-serializable payload (pool.TaskEvent for task lifecycle events).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped reports how many events were discarded because a subscriber's
	// buffer was full. Diagnostic only.
	Dropped() uint64
}

// fanoutBus owns no background goroutines; delivery happens on the
// publisher's goroutine, bounded by the non-blocking sends.
type fanoutBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func New() Bus {
	return &fanoutBus{subs: map[uint64]chan Event{}}
}

func (b *fanoutBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Sends stay under the read lock: they are non-blocking, and unsubscribe
	// closes channels only under the write lock, so a send can never race a
	// close.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *fanoutBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

func (b *fanoutBus) Dropped() uint64 { return b.dropped.Load() }
