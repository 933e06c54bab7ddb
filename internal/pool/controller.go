package pool

import (
	"context"
	"time"

	"sealdb/internal/eventbus"
	logx "sealdb/pkg/logx"
)

// controllerLoop periodically recomputes a target worker count from queue
// depth, active-worker ratio, and resource pressure, then grows the live
// worker set toward it.
//
// The pool is grow-only: when the target is below the current count, the
// target is recorded in the stats (and logged) but no live worker is
// stopped. This matches the original design; self-terminating idle workers
// were considered and rejected to keep the observable thread count
// monotonic.
func (p *Pool) controllerLoop(ctx context.Context) {
	p.mu.Lock()
	interval := p.cfg.AdjustmentInterval
	p.mu.Unlock()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.adjustOnce()
		}
	}
}

func (p *Pool) adjustOnce() {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	current := p.stats.totalThreads.Load()
	active := p.stats.activeThreads.Load()
	queued := p.stats.totalQueued.Load()
	cpuFrac, memFrac := p.ledger.fractions()

	target := computeTarget(current, active, queued, cpuFrac, memFrac, cfg)

	switch {
	case target > current:
		for i := current; i < target; i++ {
			p.spawnWorker()
		}
		p.log.Info("added workers",
			logx.Int64("from", current),
			logx.Int64("to", target),
			logx.Int64("queued", queued),
			logx.Float64("cpu_frac", cpuFrac),
			logx.Float64("mem_frac", memFrac),
		)
		if p.bus != nil {
			p.bus.Publish(eventbus.Event{Type: EventPoolAdjusted, Time: time.Now(), Data: map[string]int64{"from": current, "to": target}})
		}
	case target < current:
		// Recorded only; no live worker is stopped.
		p.log.Info("worker count target lowered",
			logx.Int64("current", current),
			logx.Int64("target", target),
		)
	}

	p.stats.targetThreads.Store(target)
	p.stats.lastAdjustment.Store(time.Now().UnixNano())
}

// computeTarget applies the adjustment policy:
//
//   - backlog with CPU or memory headroom: grow by 2, capped at MaxThreads;
//   - empty queues, mostly-idle workers, and both resources under their low
//     thresholds: shrink by 1, floored at MinThreads;
//   - otherwise: hold.
func computeTarget(current, active, queued int64, cpuFrac, memFrac float64, cfg Config) int64 {
	target := current

	if queued > 0 && (cpuFrac < cfg.CPUThresholdHigh || memFrac < cfg.MemoryThresholdHigh) {
		target = current + 2
		if max := int64(cfg.MaxThreads); target > max {
			target = max
		}
		return target
	}

	if queued == 0 && float64(active) < 0.3*float64(current) &&
		cpuFrac < cfg.CPUThresholdLow && memFrac < cfg.MemoryThresholdLow {
		target = current - 1
		if min := int64(cfg.MinThreads); target < min {
			target = min
		}
	}
	return target
}
