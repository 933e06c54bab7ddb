package pool

import (
	"context"
	"time"

	logx "sealdb/pkg/logx"
)

// monitorLoop bounds the lifetime of queued-but-not-yet-started tasks and
// surfaces periodic diagnostics. Tasks it removes never reach a worker, so
// they do not count toward total_timeout_tasks; they are logged and
// published as task.swept instead.
func (p *Pool) monitorLoop(ctx context.Context) {
	p.mu.Lock()
	interval := p.cfg.MonitorInterval
	p.mu.Unlock()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.sweepExpired(time.Now())
			p.logSnapshot()
		}
	}
}

// sweepExpired removes deadline-expired tasks from every queue, keeping the
// survivors in their original relative order. It returns the number dropped.
func (p *Pool) sweepExpired(now time.Time) int {
	dropped := p.queues.sweep(now)
	for _, t := range dropped {
		p.stats.taskDequeued(t.Priority)
		queueDelay := now.Sub(t.SubmitTime)
		if queueDelay < 0 {
			queueDelay = 0
		}
		p.publish(EventTaskSwept, t, queueDelay, 0, "deadline_exceeded")
	}
	if len(dropped) > 0 {
		p.log.Debug("swept expired tasks", logx.Int("dropped", len(dropped)))
	}
	return len(dropped)
}

func (p *Pool) logSnapshot() {
	p.log.Debug("pool stats",
		logx.Int64("active", p.stats.activeThreads.Load()),
		logx.Int64("queued", p.stats.totalQueued.Load()),
		logx.Uint64("completed", p.stats.completedTasks.Load()),
		logx.Uint64("failed", p.stats.failedTasks.Load()),
		logx.Uint64("timeouts", p.stats.timeoutTasks.Load()),
	)
}
