package pool

import (
	"context"
	"time"
)

// Priority is a task's scheduling class. Lower numeric value means higher
// precedence; workers always drain Critical before looking at High, and so
// on down to Background.
type Priority int

const (
	Critical Priority = iota
	High
	Normal
	Low
	Background
)

// numPriorities is the number of scheduling classes; queue and stats arrays
// are indexed by Priority.
const numPriorities = 5

// Priorities lists all classes from highest to lowest precedence.
var Priorities = [numPriorities]Priority{Critical, High, Normal, Low, Background}

func (p Priority) Valid() bool { return p >= Critical && p <= Background }

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// TaskType classifies a task for reporting. It has no effect on scheduling.
type TaskType int

const (
	TypeQuery TaskType = iota
	TypeTransaction
	TypeMaintenance
	TypeBackground
	TypeSystem
)

func (t TaskType) String() string {
	switch t {
	case TypeQuery:
		return "query"
	case TypeTransaction:
		return "transaction"
	case TypeMaintenance:
		return "maintenance"
	case TypeBackground:
		return "background"
	case TypeSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Task is a unit of work executed by the pool.
//
// Run receives the pool's run context, which is canceled on Stop; the pool
// never cancels the context for a deadline, because a task that has started
// is allowed to finish (the deadline gates starting, not running).
//
// Once submitted, a Task is owned exclusively by its queue until a worker
// removes it; the worker then owns it until completion or drop.
type Task struct {
	Run         func(ctx context.Context) error
	Priority    Priority
	Type        TaskType
	Description string

	// SubmitTime is set at enqueue.
	SubmitTime time.Time

	// Deadline is the instant after which the task must not be started.
	// Zero means no deadline.
	Deadline time.Time
}

// TaskEvent is the payload published on the event bus for task lifecycle
// events (task.completed, task.failed, task.timeout, task.rejected,
// task.swept).
type TaskEvent struct {
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	Type        string        `json:"type"`
	QueueDelay  time.Duration `json:"queue_delay"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Event types published by the pool.
const (
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"    // execution fault or admission denial
	EventTaskTimeout   = "task.timeout"   // dequeued past deadline
	EventTaskRejected  = "task.rejected"  // queue full at submit
	EventTaskSwept     = "task.swept"     // removed by the monitor sweep
	EventPoolAdjusted  = "pool.adjusted"  // controller changed (or recorded) a target
)
