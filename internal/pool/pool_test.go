package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "sealdb/pkg/logx"
)

// waitFor polls cond until it holds or the deadline passes. Counters are
// updated by workers asynchronously, so assertions on them poll instead of
// assuming a fixed settle time.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s", msg)
}

func newTestPool(t *testing.T, mutate func(*Config)) *Pool {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MinThreads = 2
	cfg.MaxThreads = 4
	cfg.EnableAdaptiveScheduling = false
	cfg.EnableMonitoring = false
	cfg.EnableResourceLimits = false
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.Stop(ctx)
	})
	return p
}

func TestSubmitRunsTasks(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, nil)

	const n = 10
	for i := 0; i < n; i++ {
		if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	waitFor(t, func() bool { return p.CompletedTasks() == n }, "all tasks completed")

	snap := p.Stats()
	if snap.QueuedTasks != 0 {
		t.Fatalf("QueuedTasks = %d, want 0", snap.QueuedTasks)
	}
	if snap.FailedTasks != 0 || snap.TimeoutTasks != 0 {
		t.Fatalf("unexpected failures: failed=%d timeouts=%d", snap.FailedTasks, snap.TimeoutTasks)
	}
	if got := snap.Queues[Normal].CompletedTasks; got != n {
		t.Fatalf("normal queue completed = %d, want %d", got, n)
	}
	if got := snap.Queues[Normal].QueuedTasks; got != 0 {
		t.Fatalf("normal queue depth = %d, want 0", got)
	}
}

func TestPriorityPrecedence(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.MinThreads = 1
		c.MaxThreads = 1
	})

	gate := make(chan struct{})
	if err := p.SubmitCritical(func(ctx context.Context) error {
		<-gate
		return nil
	}); err != nil {
		t.Fatalf("submit gate: %v", err)
	}
	waitFor(t, func() bool { return p.ActiveThreads() == 1 }, "gate task running")

	var mu sync.Mutex
	var order []Priority
	note := func(pri Priority) func(context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, pri)
			mu.Unlock()
			return nil
		}
	}

	// Enqueue lowest first; precedence, not arrival order, must win.
	if err := p.SubmitBackground(note(Background)); err != nil {
		t.Fatalf("submit background: %v", err)
	}
	if err := p.Submit(note(Normal)); err != nil {
		t.Fatalf("submit normal: %v", err)
	}
	if err := p.SubmitHighPriority(note(High)); err != nil {
		t.Fatalf("submit high: %v", err)
	}
	if err := p.SubmitCritical(note(Critical)); err != nil {
		t.Fatalf("submit critical: %v", err)
	}

	close(gate)
	waitFor(t, func() bool { return p.CompletedTasks() == 5 }, "all tasks completed")

	want := []Priority{Critical, High, Normal, Background}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("ran %d tasks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %v, want %v (full order %v)", i, order[i], want[i], order)
		}
	}
}

func TestFIFOWithinClass(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.MinThreads = 1
		c.MaxThreads = 1
	})

	gate := make(chan struct{})
	if err := p.SubmitCritical(func(ctx context.Context) error {
		<-gate
		return nil
	}); err != nil {
		t.Fatalf("submit gate: %v", err)
	}
	waitFor(t, func() bool { return p.ActiveThreads() == 1 }, "gate task running")

	const n = 8
	var mu sync.Mutex
	var order []int
	for i := 0; i < n; i++ {
		i := i
		if err := p.Submit(func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	close(gate)
	waitFor(t, func() bool { return p.CompletedTasks() == n+1 }, "all tasks completed")

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		if order[i] != i {
			t.Fatalf("order[%d] = %d, want %d (full order %v)", i, order[i], i, order)
		}
	}
}

func TestClassQueueCapacity(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.MinThreads = 1
		c.MaxThreads = 1
		c.NormalQueueSize = 3
	})

	gate := make(chan struct{})
	defer close(gate)
	if err := p.SubmitCritical(func(ctx context.Context) error {
		<-gate
		return nil
	}); err != nil {
		t.Fatalf("submit gate: %v", err)
	}
	waitFor(t, func() bool { return p.ActiveThreads() == 1 }, "gate task running")

	// Filling to exactly capacity must succeed.
	for i := 0; i < 3; i++ {
		if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit over capacity = %v, want ErrQueueFull", err)
	}
	// Other classes are unaffected by the full Normal queue.
	if err := p.SubmitBackground(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("SubmitBackground: %v", err)
	}
	if got := p.QueueSize(Normal); got != 3 {
		t.Fatalf("QueueSize(Normal) = %d, want 3", got)
	}
}

func TestGlobalQueueCapacity(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.MinThreads = 1
		c.MaxThreads = 1
		c.QueueSize = 4
	})

	gate := make(chan struct{})
	defer close(gate)
	if err := p.SubmitCritical(func(ctx context.Context) error {
		<-gate
		return nil
	}); err != nil {
		t.Fatalf("submit gate: %v", err)
	}
	waitFor(t, func() bool { return p.ActiveThreads() == 1 }, "gate task running")

	// Spread across classes; the global cap binds before any class cap.
	submits := []func(func(ctx context.Context) error) error{
		p.Submit, p.SubmitBackground, p.SubmitHighPriority, p.Submit,
	}
	for i, submit := range submits {
		if err := submit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("submit over global cap = %v, want ErrQueueFull", err)
	}
}

func TestExpiredTaskNeverRuns(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.MinThreads = 1
		c.MaxThreads = 1
	})

	gate := make(chan struct{})
	if err := p.SubmitCritical(func(ctx context.Context) error {
		<-gate
		return nil
	}); err != nil {
		t.Fatalf("submit gate: %v", err)
	}
	waitFor(t, func() bool { return p.ActiveThreads() == 1 }, "gate task running")

	var ran bool
	now := time.Now()
	err := p.SubmitTask(Task{
		Run:        func(ctx context.Context) error { ran = true; return nil },
		Priority:   Normal,
		Type:       TypeQuery,
		SubmitTime: now.Add(-time.Second),
		Deadline:   now.Add(-time.Millisecond),
	})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	close(gate)
	waitFor(t, func() bool { return p.TimeoutTasks() == 1 }, "timeout recorded")

	if ran {
		t.Fatal("expired task was executed")
	}
	if got := p.CompletedTasks(); got != 1 { // the gate task only
		t.Fatalf("CompletedTasks = %d, want 1", got)
	}
	if got := p.FailedTasks(); got != 0 {
		t.Fatalf("FailedTasks = %d, want 0", got)
	}
}

func TestFailureAndPanicCounting(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, nil)

	if err := p.Submit(func(ctx context.Context) error { return errors.New("boom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Submit(func(ctx context.Context) error { panic("kaboom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool { return p.FailedTasks() == 2 && p.CompletedTasks() == 1 },
		"two failures, one completion")

	// A panic must not cost a worker.
	if got := p.TotalThreads(); got != 2 {
		t.Fatalf("TotalThreads = %d, want 2", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, nil)

	if err := p.Submit(nil); !errors.Is(err, ErrNilTask) {
		t.Fatalf("Submit(nil) = %v, want ErrNilTask", err)
	}
	err := p.SubmitWithPriority(func(ctx context.Context) error { return nil }, Priority(99), TypeQuery, "x", 0)
	if !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("invalid priority = %v, want ErrInvalidPriority", err)
	}
	if err := p.SubmitTask(Task{Priority: Normal}); !errors.Is(err, ErrNilTask) {
		t.Fatalf("SubmitTask without Run = %v, want ErrNilTask", err)
	}
}

func TestResourceAdmission(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.EnableResourceLimits = true
		c.MaxMemoryMB = 512
		c.MaxCPUPercent = 70
		c.MaxIOOperations = 5000
	})

	// Push the ledger past the CPU cap; every subsequent task is refused.
	p.ledger.record(ResourceUsage{CPUTimeMS: 100})

	if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, func() bool { return p.FailedTasks() == 1 }, "task refused by resource limit")
	if got := p.CompletedTasks(); got != 0 {
		t.Fatalf("CompletedTasks = %d, want 0", got)
	}

	// Raising the cap re-enables admission; the ledger itself never resets.
	p.SetResourceLimits(512, 1000, 5000)
	if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, func() bool { return p.CompletedTasks() == 1 }, "task admitted after raising cap")

	if got := p.ResourceTotals().CPUTimeMS; got < 100 {
		t.Fatalf("ledger cpu total = %d, want >= 100", got)
	}
}

func TestStopIsIdempotentAndJoins(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, nil)

	done := make(chan struct{})
	if err := p.Submit(func(ctx context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Stop(ctx)
	p.Stop(ctx)

	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit after Stop = %v, want ErrStopped", err)
	}
}

func TestQueuedTasksObservableAfterStop(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.MinThreads = 1
		c.MaxThreads = 1
	})

	gate := make(chan struct{})
	defer close(gate)
	if err := p.SubmitCritical(func(ctx context.Context) error {
		<-gate
		return nil
	}); err != nil {
		t.Fatalf("submit gate: %v", err)
	}
	waitFor(t, func() bool { return p.ActiveThreads() == 1 }, "gate task running")

	for i := 0; i < 3; i++ {
		if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	// Stop with the worker still parked on the gate; the deferred close
	// lets it unwind afterwards.
	stopCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Stop(stopCtx)

	if got := p.QueuedTasks(); got != 3 {
		t.Fatalf("QueuedTasks after Stop = %d, want 3", got)
	}
}

func TestWaitIdle(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, nil)

	for i := 0; i < 5; i++ {
		if err := p.Submit(func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if got := p.QueuedTasks(); got != 0 {
		t.Fatalf("QueuedTasks = %d, want 0", got)
	}
}

func TestResizeValidation(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, nil)

	if err := p.Resize(0, 4); err == nil {
		t.Fatal("Resize(0, 4) accepted")
	}
	if err := p.Resize(4, 2); err == nil {
		t.Fatal("Resize(4, 2) accepted")
	}
	if err := p.Resize(2, 8); err != nil {
		t.Fatalf("Resize(2, 8): %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MinThreads = 8
	cfg.MaxThreads = 2
	if _, err := New(cfg, logx.Nop(), nil); err == nil {
		t.Fatal("expected error for max < min")
	}
}
