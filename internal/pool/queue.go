package pool

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// classQueue is one bounded FIFO queue, guarded by its own lock. The ring
// buffer keeps arrival order within the class; precedence across classes is
// the caller's concern.
type classQueue struct {
	mu       sync.Mutex
	ring     *queue.Queue
	capacity int
}

func (q *classQueue) length() int {
	q.mu.Lock()
	n := q.ring.Length()
	q.mu.Unlock()
	return n
}

// priorityQueues holds the five class queues plus the single coordinating
// condition workers block on. pending counts tasks across all classes and is
// guarded by mu (the cond's lock); individual rings are guarded by their own
// class locks so the monitor's sweep of one class does not block submissions
// to another.
type priorityQueues struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	closed  bool

	globalCap int
	classes   [numPriorities]*classQueue
}

func newPriorityQueues(cfg Config) *priorityQueues {
	pq := &priorityQueues{globalCap: cfg.QueueSize}
	pq.cond = sync.NewCond(&pq.mu)
	for _, p := range Priorities {
		pq.classes[p] = &classQueue{ring: queue.New(), capacity: cfg.queueCapacity(p)}
	}
	return pq
}

// push enqueues t into its class queue, failing fast when either the class
// capacity or the pool-wide cap is reached. On success it wakes one blocked
// worker. No side effects on failure.
func (pq *priorityQueues) push(t *Task) error {
	pq.mu.Lock()
	if pq.closed {
		pq.mu.Unlock()
		return ErrStopped
	}
	if pq.globalCap > 0 && pq.pending >= pq.globalCap {
		pq.mu.Unlock()
		return ErrQueueFull
	}

	cq := pq.classes[t.Priority]
	cq.mu.Lock()
	if cq.capacity > 0 && cq.ring.Length() >= cq.capacity {
		cq.mu.Unlock()
		pq.mu.Unlock()
		return ErrQueueFull
	}
	cq.ring.Add(t)
	cq.mu.Unlock()

	pq.pending++
	pq.cond.Signal()
	pq.mu.Unlock()
	return nil
}

// popHighest blocks until a task is available or the queues are closed, then
// removes and returns the first task of the highest non-empty class. The
// second return is false only on shutdown; queued tasks are left in place so
// they stay observable after Stop.
func (pq *priorityQueues) popHighest() (*Task, bool) {
	pq.mu.Lock()
	for pq.pending == 0 && !pq.closed {
		pq.cond.Wait()
	}
	if pq.closed {
		pq.mu.Unlock()
		return nil, false
	}

	for _, p := range Priorities {
		cq := pq.classes[p]
		cq.mu.Lock()
		if cq.ring.Length() > 0 {
			t := cq.ring.Remove().(*Task)
			cq.mu.Unlock()
			pq.pending--
			pq.mu.Unlock()
			return t, true
		}
		cq.mu.Unlock()
	}

	// pending said there was work but the rings are empty; should not happen.
	pq.mu.Unlock()
	return nil, true
}

// sweep drains every class queue, drops tasks whose deadline has passed, and
// reinserts the survivors in their original relative order. It returns the
// dropped tasks so the caller can account for them.
func (pq *priorityQueues) sweep(now time.Time) []*Task {
	var dropped []*Task

	pq.mu.Lock()
	for _, p := range Priorities {
		cq := pq.classes[p]
		cq.mu.Lock()
		n := cq.ring.Length()
		for i := 0; i < n; i++ {
			t := cq.ring.Remove().(*Task)
			if !t.Deadline.IsZero() && now.After(t.Deadline) {
				dropped = append(dropped, t)
				continue
			}
			cq.ring.Add(t)
		}
		cq.mu.Unlock()
	}
	pq.pending -= len(dropped)
	pq.mu.Unlock()
	return dropped
}

// close wakes every blocked worker; subsequent push and popHighest calls
// observe shutdown. Queued tasks are not discarded.
func (pq *priorityQueues) close() {
	pq.mu.Lock()
	pq.closed = true
	pq.cond.Broadcast()
	pq.mu.Unlock()
}

func (pq *priorityQueues) classLen(p Priority) int {
	if !p.Valid() {
		return 0
	}
	return pq.classes[p].length()
}

func (pq *priorityQueues) totalLen() int {
	pq.mu.Lock()
	n := pq.pending
	pq.mu.Unlock()
	return n
}
