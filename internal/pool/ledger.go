package pool

import "sync/atomic"

// ledger approximates global resource consumption and gates task execution.
//
// The running totals are monotonically increasing and never decay or reset
// while the pool lives; once a cap is crossed, every future admission check
// fails until SetResourceLimits raises the cap. Each worker records usage
// only after completing its own task, so no field has concurrent writers for
// a single task's accounting.
type ledger struct {
	cpuTimeMS    atomic.Uint64
	memoryKB     atomic.Uint64
	ioOperations atomic.Uint64
	networkBytes atomic.Uint64

	maxMemoryKB     atomic.Uint64
	maxCPUPercent   atomic.Uint64
	maxIOOperations atomic.Uint64
}

func newLedger(cfg Config) *ledger {
	l := &ledger{}
	l.setLimits(cfg.MaxMemoryMB, cfg.MaxCPUPercent, cfg.MaxIOOperations)
	return l
}

// admit reports whether a task may execute under the current budget. The
// reason names the first cap found exceeded.
func (l *ledger) admit() (ok bool, reason string) {
	if maxMem := l.maxMemoryKB.Load(); maxMem > 0 && l.memoryKB.Load() > maxMem {
		return false, "memory"
	}
	if maxCPU := l.maxCPUPercent.Load(); maxCPU > 0 && l.cpuTimeMS.Load() > maxCPU {
		return false, "cpu"
	}
	if maxIO := l.maxIOOperations.Load(); maxIO > 0 && l.ioOperations.Load() > maxIO {
		return false, "io"
	}
	return true, ""
}

func (l *ledger) record(u ResourceUsage) {
	l.cpuTimeMS.Add(u.CPUTimeMS)
	l.memoryKB.Add(u.MemoryKB)
	l.ioOperations.Add(u.IOOperations)
	l.networkBytes.Add(u.NetworkBytes)
}

// setLimits replaces the caps; it affects future admission checks only.
func (l *ledger) setLimits(maxMemoryMB, maxCPUPercent, maxIOOps uint64) {
	l.maxMemoryKB.Store(maxMemoryMB * 1024)
	l.maxCPUPercent.Store(maxCPUPercent)
	l.maxIOOperations.Store(maxIOOps)
}

func (l *ledger) totals() ResourceUsage {
	return ResourceUsage{
		CPUTimeMS:    l.cpuTimeMS.Load(),
		MemoryKB:     l.memoryKB.Load(),
		IOOperations: l.ioOperations.Load(),
		NetworkBytes: l.networkBytes.Load(),
	}
}

// fractions returns cpu and memory consumption normalized against the
// configured caps, for the adaptive controller's thresholds.
func (l *ledger) fractions() (cpu, mem float64) {
	if maxCPU := l.maxCPUPercent.Load(); maxCPU > 0 {
		cpu = float64(l.cpuTimeMS.Load()) / float64(maxCPU)
	}
	if maxMem := l.maxMemoryKB.Load(); maxMem > 0 {
		mem = float64(l.memoryKB.Load()) / float64(maxMem)
	}
	return cpu, mem
}
