// Package metrics exposes the scheduler's statistics as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sealdb/internal/pool"
)

const namespace = "sealdb"

// Collector reads a fresh pool snapshot on every scrape and emits const
// metrics from it. It keeps no state of its own.
type Collector struct {
	pool *pool.Pool

	threadsTotal   *prometheus.Desc
	threadsTarget  *prometheus.Desc
	threadsActive  *prometheus.Desc
	queuedTasks    *prometheus.Desc
	tasksCompleted *prometheus.Desc
	tasksFailed    *prometheus.Desc
	tasksTimeout   *prometheus.Desc
	queueDepth     *prometheus.Desc
	queueCompleted *prometheus.Desc
	queueFailed    *prometheus.Desc
	cpuTimeMS      *prometheus.Desc
	memoryKB       *prometheus.Desc
	ioOperations   *prometheus.Desc
	networkBytes   *prometheus.Desc
	uptimeSeconds  *prometheus.Desc
}

func NewCollector(p *pool.Pool) *Collector {
	sub := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "scheduler", name), help, labels, nil)
	}
	return &Collector{
		pool:           p,
		threadsTotal:   sub("threads", "Current number of worker threads."),
		threadsTarget:  sub("threads_target", "Worker count last requested by the adjuster."),
		threadsActive:  sub("threads_active", "Workers currently executing a task."),
		queuedTasks:    sub("queued_tasks", "Tasks waiting across all priority queues."),
		tasksCompleted: sub("tasks_completed_total", "Tasks that finished successfully."),
		tasksFailed:    sub("tasks_failed_total", "Tasks that returned an error, panicked, or were refused by resource limits."),
		tasksTimeout:   sub("tasks_timeout_total", "Tasks dropped at dequeue because their deadline had passed."),
		queueDepth:     sub("queue_depth", "Tasks waiting in one priority queue.", "priority"),
		queueCompleted: sub("queue_completed_total", "Completed tasks per priority queue.", "priority"),
		queueFailed:    sub("queue_failed_total", "Failed tasks per priority queue.", "priority"),
		cpuTimeMS:      sub("cpu_time_milliseconds_total", "Accumulated task CPU time."),
		memoryKB:       sub("memory_kilobytes_total", "Accumulated task memory charge."),
		ioOperations:   sub("io_operations_total", "Accumulated task I/O operations."),
		networkBytes:   sub("network_bytes_total", "Accumulated task network bytes."),
		uptimeSeconds:  sub("uptime_seconds", "Seconds since the pool started."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.threadsTotal
	ch <- c.threadsTarget
	ch <- c.threadsActive
	ch <- c.queuedTasks
	ch <- c.tasksCompleted
	ch <- c.tasksFailed
	ch <- c.tasksTimeout
	ch <- c.queueDepth
	ch <- c.queueCompleted
	ch <- c.queueFailed
	ch <- c.cpuTimeMS
	ch <- c.memoryKB
	ch <- c.ioOperations
	ch <- c.networkBytes
	ch <- c.uptimeSeconds
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.pool.Stats()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	gauge(c.threadsTotal, float64(snap.TotalThreads))
	gauge(c.threadsTarget, float64(snap.TargetThreads))
	gauge(c.threadsActive, float64(snap.ActiveThreads))
	gauge(c.queuedTasks, float64(snap.QueuedTasks))
	counter(c.tasksCompleted, float64(snap.CompletedTasks))
	counter(c.tasksFailed, float64(snap.FailedTasks))
	counter(c.tasksTimeout, float64(snap.TimeoutTasks))

	for _, p := range pool.Priorities {
		qs := snap.Queues[p]
		gauge(c.queueDepth, float64(qs.QueuedTasks), p.String())
		counter(c.queueCompleted, float64(qs.CompletedTasks), p.String())
		counter(c.queueFailed, float64(qs.FailedTasks), p.String())
	}

	counter(c.cpuTimeMS, float64(snap.Resources.CPUTimeMS))
	counter(c.memoryKB, float64(snap.Resources.MemoryKB))
	counter(c.ioOperations, float64(snap.Resources.IOOperations))
	counter(c.networkBytes, float64(snap.Resources.NetworkBytes))
	gauge(c.uptimeSeconds, time.Since(snap.StartTime).Seconds())
}
