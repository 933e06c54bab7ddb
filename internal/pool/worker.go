package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "sealdb/pkg/logx"
)

// overlongThreshold flags tasks whose execution time warrants a diagnostic
// log line. Overlong tasks are never interrupted; there is no preemption.
const overlongThreshold = time.Second

// worker is the dispatcher loop. It pulls the highest-priority available
// task, enforces its deadline and the resource budget, executes it, and
// records the outcome. Task failure never terminates the worker.
func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t, ok := p.queues.popHighest()
		if !ok {
			return
		}
		p.stats.taskDequeued(t.Priority)

		p.stats.activeThreads.Add(1)
		p.runTask(ctx, t)
		p.stats.activeThreads.Add(-1)
	}
}

func (p *Pool) runTask(ctx context.Context, t *Task) {
	now := time.Now()
	queueDelay := time.Duration(0)
	if !t.SubmitTime.IsZero() {
		queueDelay = now.Sub(t.SubmitTime)
		if queueDelay < 0 {
			queueDelay = 0
		}
	}

	// Late start: the deadline elapsed while the task sat in its queue.
	// Discard without running.
	if !t.Deadline.IsZero() && now.After(t.Deadline) {
		p.stats.timeoutTasks.Add(1)
		p.publish(EventTaskTimeout, t, queueDelay, 0, "deadline_exceeded")
		if p.warnLimit.Allow() {
			p.log.Warn("task timeout",
				logx.String("task", t.Description),
				logx.String("priority", t.Priority.String()),
				logx.Duration("queue_delay", queueDelay),
			)
		}
		return
	}

	p.mu.Lock()
	limitsEnabled := p.cfg.EnableResourceLimits
	p.mu.Unlock()

	// Admission check: denied tasks count as failed and are never retried.
	if limitsEnabled {
		if ok, reason := p.ledger.admit(); !ok {
			p.stats.taskFailed(t.Priority)
			p.publish(EventTaskFailed, t, queueDelay, 0, "resource_limit_"+reason)
			if p.warnLimit.Allow() {
				p.log.Warn("resource limit exceeded, skipping task",
					logx.String("task", t.Description),
					logx.String("limit", reason),
				)
			}
			return
		}
	}

	start := time.Now()
	err := p.execute(ctx, t)
	elapsed := time.Since(start)

	if limitsEnabled {
		p.record(ResourceUsage{CPUTimeMS: uint64(elapsed.Milliseconds())})
	}

	if err != nil {
		p.stats.taskFailed(t.Priority)
		p.publish(EventTaskFailed, t, queueDelay, elapsed, err.Error())
		p.log.Warn("task failed",
			logx.String("task", t.Description),
			logx.String("priority", t.Priority.String()),
			logx.Any("err", err),
			logx.Duration("dur", elapsed),
		)
		return
	}

	p.stats.taskCompleted(t.Priority)
	p.publish(EventTaskCompleted, t, queueDelay, elapsed, "")
	if elapsed > overlongThreshold {
		p.log.Warn("task took too long",
			logx.String("task", t.Description),
			logx.Duration("dur", elapsed),
		)
	} else {
		p.log.Debug("task completed",
			logx.String("task", t.Description),
			logx.String("priority", t.Priority.String()),
			logx.Duration("queue_delay", queueDelay),
			logx.Duration("dur", elapsed),
		)
	}
}

// execute runs the callable inside the single per-task fault boundary: a
// panic is converted into an error here and never unwinds into the worker.
func (p *Pool) execute(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			p.log.Error("task panicked",
				logx.String("task", t.Description),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	return t.Run(ctx)
}

// record feeds completed-task usage into both the admission ledger and the
// stats accumulators.
func (p *Pool) record(u ResourceUsage) {
	p.ledger.record(u)
	p.stats.usage.cpuTimeMS.Add(u.CPUTimeMS)
	p.stats.usage.memoryKB.Add(u.MemoryKB)
	p.stats.usage.ioOperations.Add(u.IOOperations)
	p.stats.usage.networkBytes.Add(u.NetworkBytes)
}
