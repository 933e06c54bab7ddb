package pool

import "testing"

func TestLedgerAdmit(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaxMemoryMB = 1 // 1024 KB
	cfg.MaxCPUPercent = 50
	cfg.MaxIOOperations = 10
	l := newLedger(cfg)

	if ok, reason := l.admit(); !ok {
		t.Fatalf("fresh ledger denied admission: %s", reason)
	}

	l.record(ResourceUsage{MemoryKB: 2048})
	if ok, reason := l.admit(); ok || reason != "memory" {
		t.Fatalf("admit = %v/%s, want denied/memory", ok, reason)
	}

	// Memory is checked first; cpu reported only once memory is back under cap.
	l.setLimits(4, 50, 10)
	l.record(ResourceUsage{CPUTimeMS: 60})
	if ok, reason := l.admit(); ok || reason != "cpu" {
		t.Fatalf("admit = %v/%s, want denied/cpu", ok, reason)
	}

	l.setLimits(4, 1000, 10)
	l.record(ResourceUsage{IOOperations: 11})
	if ok, reason := l.admit(); ok || reason != "io" {
		t.Fatalf("admit = %v/%s, want denied/io", ok, reason)
	}

	// Raising every cap re-admits; usage itself never resets.
	l.setLimits(4, 1000, 100)
	if ok, _ := l.admit(); !ok {
		t.Fatal("admission still denied after raising caps")
	}
	tot := l.totals()
	if tot.MemoryKB != 2048 || tot.CPUTimeMS != 60 || tot.IOOperations != 11 {
		t.Fatalf("totals = %+v, usage must not reset", tot)
	}
}

func TestLedgerZeroCapsDisableCheck(t *testing.T) {
	t.Parallel()
	l := &ledger{}
	l.record(ResourceUsage{CPUTimeMS: 1 << 40, MemoryKB: 1 << 40, IOOperations: 1 << 40})
	if ok, reason := l.admit(); !ok {
		t.Fatalf("zero caps must admit everything, denied with %s", reason)
	}
}

func TestLedgerFractions(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaxMemoryMB = 1 // 1024 KB
	cfg.MaxCPUPercent = 100
	l := newLedger(cfg)
	l.record(ResourceUsage{CPUTimeMS: 50, MemoryKB: 512})

	cpu, mem := l.fractions()
	if cpu != 0.5 {
		t.Fatalf("cpu fraction = %v, want 0.5", cpu)
	}
	if mem != 0.5 {
		t.Fatalf("mem fraction = %v, want 0.5", mem)
	}
}
