package pool

import (
	"context"
	"testing"
	"time"
)

func TestComputeTarget(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MinThreads = 4
	cfg.MaxThreads = 16

	tests := []struct {
		name             string
		current, active  int64
		queued           int64
		cpuFrac, memFrac float64
		want             int64
	}{
		{name: "backlog grows by two", current: 4, active: 4, queued: 10, want: 6},
		{name: "growth capped at max", current: 15, active: 15, queued: 10, want: 16},
		{name: "at max holds", current: 16, active: 16, queued: 10, want: 16},
		{name: "backlog but both resources high", current: 4, active: 4, queued: 10, cpuFrac: 0.9, memFrac: 0.9, want: 4},
		{name: "backlog with memory headroom only", current: 4, active: 4, queued: 10, cpuFrac: 0.9, memFrac: 0.1, want: 6},
		{name: "idle shrinks by one", current: 8, active: 1, queued: 0, want: 7},
		{name: "shrink floored at min", current: 4, active: 0, queued: 0, want: 4},
		{name: "idle but cpu above low threshold", current: 8, active: 1, queued: 0, cpuFrac: 0.5, want: 8},
		{name: "busy workers hold", current: 8, active: 6, queued: 0, want: 8},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := computeTarget(tt.current, tt.active, tt.queued, tt.cpuFrac, tt.memFrac, cfg)
			if got != tt.want {
				t.Fatalf("computeTarget = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdjustOnceGrowsWorkers(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.MinThreads = 1
		c.MaxThreads = 4
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

	// Backlog behind the busy worker.
	for i := 0; i < 3; i++ {
		if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	p.adjustOnce()

	if got := p.TotalThreads(); got != 3 {
		t.Fatalf("TotalThreads after adjust = %d, want 3", got)
	}
	snap := p.Stats()
	if snap.TargetThreads != 3 {
		t.Fatalf("TargetThreads = %d, want 3", snap.TargetThreads)
	}
	// The new workers drain the backlog.
	waitFor(t, func() bool { return p.QueuedTasks() == 0 }, "backlog drained")
}

func TestAdjustOnceShrinkIsRecordedOnly(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, func(c *Config) {
		c.MinThreads = 1
		c.MaxThreads = 8
	})
	// Grow first so there is room to shrink from.
	p.stats.totalThreads.Store(4)

	before := time.Now()
	p.adjustOnce()

	// Idle with four (claimed) workers: target drops, thread count does not.
	if got := p.stats.targetThreads.Load(); got != 3 {
		t.Fatalf("target = %d, want 3", got)
	}
	if got := p.stats.totalThreads.Load(); got != 4 {
		t.Fatalf("totalThreads = %d, want 4 (no worker stopped)", got)
	}
	snap := p.Stats()
	if snap.LastAdjustment.Before(before) {
		t.Fatal("LastAdjustment not updated")
	}
}
