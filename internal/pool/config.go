package pool

import (
	"fmt"
	"time"
)

// Config controls the scheduler. It is immutable after construction except
// through explicit Resize / SetResourceLimits calls.
type Config struct {
	// Worker-count bounds. MinThreads workers start immediately; the adaptive
	// controller may grow the set up to MaxThreads.
	MinThreads int
	MaxThreads int

	// QueueSize caps the total number of queued tasks across all classes.
	QueueSize int

	// Per-class queue capacities.
	CriticalQueueSize   int
	HighQueueSize       int
	NormalQueueSize     int
	LowQueueSize        int
	BackgroundQueueSize int

	EnableAdaptiveScheduling bool
	EnableResourceLimits     bool
	EnableMonitoring         bool

	// Resource budget caps read by the admission check.
	MaxMemoryMB     uint64
	MaxCPUPercent   uint64
	MaxIOOperations uint64

	// Background loop periods.
	MonitorInterval    time.Duration
	AdjustmentInterval time.Duration

	// Fractional thresholds (0.0-1.0) driving the adaptive controller.
	CPUThresholdHigh    float64
	CPUThresholdLow     float64
	MemoryThresholdHigh float64
	MemoryThresholdLow  float64

	// Default deadline offsets by priority, used when the caller does not
	// supply an explicit timeout.
	DefaultTaskTimeout    time.Duration
	CriticalTaskTimeout   time.Duration
	BackgroundTaskTimeout time.Duration
}

// DefaultConfig mirrors the reference configuration of sealdb's server.
func DefaultConfig() Config {
	return Config{
		MinThreads:               4,
		MaxThreads:               16,
		QueueSize:                1000,
		CriticalQueueSize:        50,
		HighQueueSize:            100,
		NormalQueueSize:          200,
		LowQueueSize:             100,
		BackgroundQueueSize:      50,
		EnableAdaptiveScheduling: true,
		EnableResourceLimits:     true,
		EnableMonitoring:         true,
		MaxMemoryMB:              512,
		MaxCPUPercent:            70,
		MaxIOOperations:          5000,
		MonitorInterval:          2 * time.Second,
		AdjustmentInterval:       3 * time.Second,
		CPUThresholdHigh:         0.7,
		CPUThresholdLow:          0.3,
		MemoryThresholdHigh:      0.8,
		MemoryThresholdLow:       0.4,
		DefaultTaskTimeout:       10 * time.Second,
		CriticalTaskTimeout:      2 * time.Second,
		BackgroundTaskTimeout:    60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinThreads <= 0 {
		c.MinThreads = d.MinThreads
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = d.MaxThreads
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.CriticalQueueSize <= 0 {
		c.CriticalQueueSize = d.CriticalQueueSize
	}
	if c.HighQueueSize <= 0 {
		c.HighQueueSize = d.HighQueueSize
	}
	if c.NormalQueueSize <= 0 {
		c.NormalQueueSize = d.NormalQueueSize
	}
	if c.LowQueueSize <= 0 {
		c.LowQueueSize = d.LowQueueSize
	}
	if c.BackgroundQueueSize <= 0 {
		c.BackgroundQueueSize = d.BackgroundQueueSize
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = d.MonitorInterval
	}
	if c.AdjustmentInterval <= 0 {
		c.AdjustmentInterval = d.AdjustmentInterval
	}
	if c.CPUThresholdHigh <= 0 {
		c.CPUThresholdHigh = d.CPUThresholdHigh
	}
	if c.CPUThresholdLow <= 0 {
		c.CPUThresholdLow = d.CPUThresholdLow
	}
	if c.MemoryThresholdHigh <= 0 {
		c.MemoryThresholdHigh = d.MemoryThresholdHigh
	}
	if c.MemoryThresholdLow <= 0 {
		c.MemoryThresholdLow = d.MemoryThresholdLow
	}
	if c.DefaultTaskTimeout <= 0 {
		c.DefaultTaskTimeout = d.DefaultTaskTimeout
	}
	if c.CriticalTaskTimeout <= 0 {
		c.CriticalTaskTimeout = d.CriticalTaskTimeout
	}
	if c.BackgroundTaskTimeout <= 0 {
		c.BackgroundTaskTimeout = d.BackgroundTaskTimeout
	}
	return c
}

func (c Config) validate() error {
	if c.MinThreads < 1 {
		return fmt.Errorf("pool: min_threads must be >= 1, got %d", c.MinThreads)
	}
	if c.MaxThreads < c.MinThreads {
		return fmt.Errorf("pool: max_threads (%d) must be >= min_threads (%d)", c.MaxThreads, c.MinThreads)
	}
	if c.CPUThresholdLow > c.CPUThresholdHigh {
		return fmt.Errorf("pool: cpu_threshold_low (%v) must be <= cpu_threshold_high (%v)", c.CPUThresholdLow, c.CPUThresholdHigh)
	}
	if c.MemoryThresholdLow > c.MemoryThresholdHigh {
		return fmt.Errorf("pool: memory_threshold_low (%v) must be <= memory_threshold_high (%v)", c.MemoryThresholdLow, c.MemoryThresholdHigh)
	}
	return nil
}

// queueCapacity returns the configured capacity for a class queue.
func (c Config) queueCapacity(p Priority) int {
	switch p {
	case Critical:
		return c.CriticalQueueSize
	case High:
		return c.HighQueueSize
	case Normal:
		return c.NormalQueueSize
	case Low:
		return c.LowQueueSize
	case Background:
		return c.BackgroundQueueSize
	default:
		return 0
	}
}

// defaultTimeout returns the default deadline offset for a class.
func (c Config) defaultTimeout(p Priority) time.Duration {
	switch p {
	case Critical:
		return c.CriticalTaskTimeout
	case Background:
		return c.BackgroundTaskTimeout
	default:
		return c.DefaultTaskTimeout
	}
}
