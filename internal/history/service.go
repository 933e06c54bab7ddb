package history

import (
	"context"
	"sync"

	"sealdb/internal/eventbus"
	"sealdb/internal/pool"
	logx "sealdb/pkg/logx"
)

// outcome maps a bus event type to a stored outcome label. Events not listed
// here (rejections, pool adjustments) are not persisted.
var outcomes = map[string]string{
	pool.EventTaskCompleted: "completed",
	pool.EventTaskFailed:    "failed",
	pool.EventTaskTimeout:   "timeout",
	pool.EventTaskSwept:     "swept",
}

// Service consumes task lifecycle events from the bus and appends them to
// the store. Writes are best-effort; a failed insert is logged and dropped.
type Service struct {
	store *Store
	log   logx.Logger

	mu     sync.Mutex
	unsub  func()
	done   chan struct{}
	closed bool
}

func NewService(store *Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log.With(logx.String("comp", "history"))}
}

func (s *Service) Start(ctx context.Context, bus eventbus.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub != nil || s.closed {
		return
	}

	ch, unsub := bus.Subscribe(256)
	s.unsub = unsub
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.consume(ctx, ev)
			}
		}
	}()
}

func (s *Service) consume(ctx context.Context, ev eventbus.Event) {
	outcome, want := outcomes[ev.Type]
	if !want {
		return
	}
	te, ok := ev.Data.(pool.TaskEvent)
	if !ok {
		return
	}
	err := s.store.Append(ctx, Entry{
		At:          ev.Time,
		Description: te.Description,
		Priority:    te.Priority,
		Type:        te.Type,
		Outcome:     outcome,
		QueueDelay:  te.QueueDelay,
		Duration:    te.Duration,
		Error:       te.Error,
	})
	if err != nil {
		s.log.Warn("history append failed", logx.Any("err", err))
	}
}

// Stop unsubscribes from the bus and waits for the consumer to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	unsub := s.unsub
	done := s.done
	s.unsub = nil
	s.closed = true
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if done != nil {
		<-done
	}
}
