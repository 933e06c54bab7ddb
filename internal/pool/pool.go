package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"sealdb/internal/eventbus"
	rtsup "sealdb/internal/runtime/supervisor"
	logx "sealdb/pkg/logx"
)

// Pool is sealdb's task scheduler. Construct it with New; it spawns its
// initial worker set (and, if enabled, the monitor and adaptive controller)
// immediately, and is torn down by a single Stop call.
type Pool struct {
	mu  sync.Mutex
	cfg Config

	log logx.Logger
	bus eventbus.Bus

	queues *priorityQueues
	stats  *stats
	ledger *ledger

	sup     *rtsup.Supervisor
	running atomic.Bool
	stopped chan struct{}

	workerSeq atomic.Int64

	// Throttles the hot-path warnings (queue full, admission denied, late
	// start) so a flood of failing tasks cannot flood the log.
	warnLimit *rate.Limiter
}

// New validates cfg, builds the pool, and starts MinThreads workers plus the
// monitor and adaptive controller when their toggles are set.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	p := &Pool{
		cfg:       cfg,
		log:       log.With(logx.String("comp", "pool")),
		bus:       bus,
		queues:    newPriorityQueues(cfg),
		stats:     newStats(),
		ledger:    newLedger(cfg),
		stopped:   make(chan struct{}),
		warnLimit: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	p.running.Store(true)
	p.sup = rtsup.New(context.Background(),
		rtsup.WithLogger(p.log),
		rtsup.WithCancelOnError(false),
	)

	p.stats.targetThreads.Store(int64(cfg.MinThreads))
	for i := 0; i < cfg.MinThreads; i++ {
		p.spawnWorker()
	}

	if cfg.EnableMonitoring {
		p.sup.GoRestart("monitor", func(ctx context.Context) error {
			p.monitorLoop(ctx)
			return context.Canceled
		})
	}
	if cfg.EnableAdaptiveScheduling {
		p.sup.GoRestart("controller", func(ctx context.Context) error {
			p.controllerLoop(ctx)
			return context.Canceled
		})
	}

	p.log.Info("pool started",
		logx.Int("min_threads", cfg.MinThreads),
		logx.Int("max_threads", cfg.MaxThreads),
		logx.Bool("adaptive", cfg.EnableAdaptiveScheduling),
		logx.Bool("monitoring", cfg.EnableMonitoring),
		logx.Bool("resource_limits", cfg.EnableResourceLimits),
	)
	return p, nil
}

func (p *Pool) spawnWorker() {
	id := p.workerSeq.Add(1)
	p.stats.totalThreads.Add(1)
	name := fmt.Sprintf("worker.%d", id)
	p.sup.GoRestart(name, func(ctx context.Context) error {
		p.worker(ctx)
		// Clean exits happen only on shutdown.
		return context.Canceled
	})
}

// Submit enqueues fn at Normal priority with the configured default timeout.
func (p *Pool) Submit(fn func(ctx context.Context) error) error {
	return p.SubmitWithPriority(fn, Normal, TypeQuery, "task", 0)
}

// SubmitCritical enqueues fn at Critical priority with the critical timeout.
func (p *Pool) SubmitCritical(fn func(ctx context.Context) error) error {
	return p.SubmitWithPriority(fn, Critical, TypeSystem, "critical task", 0)
}

// SubmitHighPriority enqueues fn at High priority with the default timeout.
func (p *Pool) SubmitHighPriority(fn func(ctx context.Context) error) error {
	return p.SubmitWithPriority(fn, High, TypeQuery, "high priority task", 0)
}

// SubmitBackground enqueues fn at Background priority with the background
// timeout.
func (p *Pool) SubmitBackground(fn func(ctx context.Context) error) error {
	return p.SubmitWithPriority(fn, Background, TypeBackground, "background task", 0)
}

// SubmitWithPriority enqueues fn with full control over priority, type tag,
// description, and timeout. The deadline is now()+timeout; a zero timeout
// falls back to the priority's configured default.
func (p *Pool) SubmitWithPriority(fn func(ctx context.Context) error, priority Priority, typ TaskType, description string, timeout time.Duration) error {
	if fn == nil {
		return ErrNilTask
	}
	if !priority.Valid() {
		return ErrInvalidPriority
	}

	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	if timeout <= 0 {
		timeout = cfg.defaultTimeout(priority)
	}
	now := time.Now()
	return p.SubmitTask(Task{
		Run:         fn,
		Priority:    priority,
		Type:        typ,
		Description: description,
		SubmitTime:  now,
		Deadline:    now.Add(timeout),
	})
}

// SubmitTask enqueues a fully-specified task; the caller controls the
// deadline directly. Fails fast with ErrQueueFull on capacity and never
// blocks.
func (p *Pool) SubmitTask(t Task) error {
	if t.Run == nil {
		return ErrNilTask
	}
	if !t.Priority.Valid() {
		return ErrInvalidPriority
	}
	if !p.running.Load() {
		return ErrStopped
	}
	if t.SubmitTime.IsZero() {
		t.SubmitTime = time.Now()
	}

	if err := p.queues.push(&t); err != nil {
		if err == ErrQueueFull {
			p.publish(EventTaskRejected, &t, 0, 0, "queue_full")
			if p.warnLimit.Allow() {
				p.log.Warn("task rejected: queue full",
					logx.String("task", t.Description),
					logx.String("priority", t.Priority.String()),
					logx.Int64("queued", p.stats.totalQueued.Load()),
				)
			}
		}
		return err
	}
	p.stats.taskQueued(t.Priority)
	return nil
}

// Stats returns a point-in-time copy of the pool statistics. See Snapshot
// for the consistency caveat.
func (p *Pool) Stats() Snapshot { return p.stats.snapshot() }

// Per-field accessors: independent atomic reads, usable without building a
// full snapshot.

func (p *Pool) TotalThreads() int64     { return p.stats.totalThreads.Load() }
func (p *Pool) ActiveThreads() int64    { return p.stats.activeThreads.Load() }
func (p *Pool) QueuedTasks() int64      { return p.stats.totalQueued.Load() }
func (p *Pool) CompletedTasks() uint64  { return p.stats.completedTasks.Load() }
func (p *Pool) FailedTasks() uint64     { return p.stats.failedTasks.Load() }
func (p *Pool) TimeoutTasks() uint64    { return p.stats.timeoutTasks.Load() }
func (p *Pool) ResourceTotals() ResourceUsage { return p.ledger.totals() }

// QueueSize returns the current depth of one class queue.
func (p *Pool) QueueSize(priority Priority) int { return p.queues.classLen(priority) }

// SetResourceLimits updates the caps read by the admission check. It takes
// effect for all future checks, not retroactively.
func (p *Pool) SetResourceLimits(maxMemoryMB, maxCPUPercent, maxIOOps uint64) {
	p.mu.Lock()
	p.cfg.MaxMemoryMB = maxMemoryMB
	p.cfg.MaxCPUPercent = maxCPUPercent
	p.cfg.MaxIOOperations = maxIOOps
	p.mu.Unlock()
	p.ledger.setLimits(maxMemoryMB, maxCPUPercent, maxIOOps)

	p.log.Info("resource limits set",
		logx.Uint64("max_memory_mb", maxMemoryMB),
		logx.Uint64("max_cpu_percent", maxCPUPercent),
		logx.Uint64("max_io_operations", maxIOOps),
	)
}

// Resize updates the worker-count bounds; the adaptive controller observes
// them on its next cycle. No worker is stopped if the pool currently exceeds
// max (the pool only ever grows).
func (p *Pool) Resize(minThreads, maxThreads int) error {
	if minThreads < 1 || maxThreads < minThreads {
		return fmt.Errorf("pool: invalid bounds min=%d max=%d", minThreads, maxThreads)
	}
	p.mu.Lock()
	p.cfg.MinThreads = minThreads
	p.cfg.MaxThreads = maxThreads
	p.mu.Unlock()

	p.log.Info("pool resized", logx.Int("min_threads", minThreads), logx.Int("max_threads", maxThreads))
	return nil
}

// WaitIdle blocks until no task is queued and no worker is executing, or ctx
// is done.
func (p *Pool) WaitIdle(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if p.stats.totalQueued.Load() == 0 && p.stats.activeThreads.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Stop signals shutdown, wakes every blocked worker, and joins all pool
// goroutines. It is idempotent; queued-but-unstarted tasks remain observable
// through the stats counters.
func (p *Pool) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !p.running.CompareAndSwap(true, false) {
		select {
		case <-p.stopped:
		case <-ctx.Done():
		}
		return
	}

	p.log.Info("stopping pool")
	p.queues.close()
	p.sup.Cancel()

	go func() {
		_ = p.sup.Wait(context.Background())
		close(p.stopped)
	}()

	select {
	case <-p.stopped:
		p.log.Info("pool stopped",
			logx.Uint64("completed", p.stats.completedTasks.Load()),
			logx.Uint64("failed", p.stats.failedTasks.Load()),
			logx.Uint64("timeouts", p.stats.timeoutTasks.Load()),
			logx.Int64("still_queued", p.stats.totalQueued.Load()),
		)
	case <-ctx.Done():
		p.log.Warn("pool stop timed out", logx.Any("err", ctx.Err()))
	}
}

// Supervisor exposes the pool's goroutine supervisor for operational
// visibility (e.g. health endpoints).
func (p *Pool) Supervisor() *rtsup.Supervisor { return p.sup }

func (p *Pool) publish(typ string, t *Task, queueDelay, duration time.Duration, errStr string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{
		Type: typ,
		Time: time.Now(),
		Data: TaskEvent{
			Description: t.Description,
			Priority:    t.Priority.String(),
			Type:        t.Type.String(),
			QueueDelay:  queueDelay,
			Duration:    duration,
			Error:       errStr,
		},
	})
}
