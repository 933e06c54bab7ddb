package pool

import (
	"sync/atomic"
	"time"
)

// stats holds the pool's live counters. All fields are independently-updated
// atomics; readers must tolerate momentary skew across fields.
type stats struct {
	totalThreads   atomic.Int64
	targetThreads  atomic.Int64
	activeThreads  atomic.Int64
	totalQueued    atomic.Int64
	completedTasks atomic.Uint64
	failedTasks    atomic.Uint64
	timeoutTasks   atomic.Uint64

	startTime      time.Time
	lastAdjustment atomic.Int64 // unix nanos

	queues [numPriorities]queueCounters
	usage  resourceCounters
}

type queueCounters struct {
	queued    atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
}

type resourceCounters struct {
	cpuTimeMS    atomic.Uint64
	memoryKB     atomic.Uint64
	ioOperations atomic.Uint64
	networkBytes atomic.Uint64
}

func newStats() *stats {
	s := &stats{startTime: time.Now()}
	s.lastAdjustment.Store(s.startTime.UnixNano())
	return s
}

func (s *stats) taskQueued(p Priority) {
	s.totalQueued.Add(1)
	s.queues[p].queued.Add(1)
}

func (s *stats) taskDequeued(p Priority) {
	s.totalQueued.Add(-1)
	s.queues[p].queued.Add(-1)
}

func (s *stats) taskCompleted(p Priority) {
	s.completedTasks.Add(1)
	s.queues[p].completed.Add(1)
}

func (s *stats) taskFailed(p Priority) {
	s.failedTasks.Add(1)
	s.queues[p].failed.Add(1)
}

// QueueStats is the per-priority slice of a Snapshot.
type QueueStats struct {
	QueuedTasks    int64  `json:"queued_tasks"`
	CompletedTasks uint64 `json:"completed_tasks"`
	FailedTasks    uint64 `json:"failed_tasks"`
}

// ResourceUsage is a task's (or the pool's accumulated) resource consumption.
type ResourceUsage struct {
	CPUTimeMS    uint64 `json:"cpu_time_ms"`
	MemoryKB     uint64 `json:"memory_usage_kb"`
	IOOperations uint64 `json:"io_operations"`
	NetworkBytes uint64 `json:"network_bytes"`
}

// Snapshot is a point-in-time copy of the pool's statistics.
//
// Each field is read individually from its atomic; the snapshot is not a
// single atomic transaction, so small cross-field skew is possible and
// acceptable.
type Snapshot struct {
	TotalThreads   int64     `json:"total_threads"`
	TargetThreads  int64     `json:"target_threads"`
	ActiveThreads  int64     `json:"active_threads"`
	QueuedTasks    int64     `json:"total_queued_tasks"`
	CompletedTasks uint64    `json:"total_completed_tasks"`
	FailedTasks    uint64    `json:"total_failed_tasks"`
	TimeoutTasks   uint64    `json:"total_timeout_tasks"`
	StartTime      time.Time `json:"start_time"`
	LastAdjustment time.Time `json:"last_adjustment"`

	// Queues always holds one entry per priority class.
	Queues map[Priority]QueueStats `json:"queues"`

	Resources ResourceUsage `json:"resources"`
}

func (s *stats) snapshot() Snapshot {
	snap := Snapshot{
		TotalThreads:   s.totalThreads.Load(),
		TargetThreads:  s.targetThreads.Load(),
		ActiveThreads:  s.activeThreads.Load(),
		QueuedTasks:    s.totalQueued.Load(),
		CompletedTasks: s.completedTasks.Load(),
		FailedTasks:    s.failedTasks.Load(),
		TimeoutTasks:   s.timeoutTasks.Load(),
		StartTime:      s.startTime,
		LastAdjustment: time.Unix(0, s.lastAdjustment.Load()),
		Queues:         make(map[Priority]QueueStats, numPriorities),
		Resources: ResourceUsage{
			CPUTimeMS:    s.usage.cpuTimeMS.Load(),
			MemoryKB:     s.usage.memoryKB.Load(),
			IOOperations: s.usage.ioOperations.Load(),
			NetworkBytes: s.usage.networkBytes.Load(),
		},
	}
	for _, p := range Priorities {
		qc := &s.queues[p]
		snap.Queues[p] = QueueStats{
			QueuedTasks:    qc.queued.Load(),
			CompletedTasks: qc.completed.Load(),
			FailedTasks:    qc.failed.Load(),
		}
	}
	return snap
}
