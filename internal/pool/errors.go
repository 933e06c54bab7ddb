package pool

import "errors"

var (
	// ErrQueueFull is returned by Submit* when the task's class queue or the
	// pool-wide cap is at capacity. Callers must treat it as backpressure;
	// the pool never retries on their behalf.
	ErrQueueFull = errors.New("pool: queue full")

	// ErrStopped is returned by Submit* after Stop has been called.
	ErrStopped = errors.New("pool: stopped")

	// ErrNilTask is returned when a submission carries no callable.
	ErrNilTask = errors.New("pool: task Run is nil")

	// ErrInvalidPriority is returned for a priority outside the five classes.
	ErrInvalidPriority = errors.New("pool: invalid priority")
)
