package config

import (
	"fmt"
	"strings"

	"sealdb/internal/pool"
	logx "sealdb/pkg/logx"
)

// Config is the top-level configuration file layout.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging     LoggingConfig      `json:"logging"`
	Pool        PoolConfig         `json:"pool"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
	History     *HistoryConfig     `json:"history,omitempty"`
	Metrics     *MetricsConfig     `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

// ToLogx maps the section onto the logging service config.
// Console defaults to on when omitted.
func (c LoggingConfig) ToLogx() logx.Config {
	console := true
	if c.Console != nil {
		console = *c.Console
	}
	out := logx.Config{Level: c.Level, Console: console}
	out.File.Enabled = c.File.Enabled
	out.File.Path = c.File.Path
	return out
}

// PoolConfig is the scheduler section. Zero fields fall back to the pool's
// built-in defaults.
type PoolConfig struct {
	MinThreads int `json:"min_threads,omitempty"`
	MaxThreads int `json:"max_threads,omitempty"`

	QueueSize           int `json:"queue_size,omitempty"`
	CriticalQueueSize   int `json:"critical_queue_size,omitempty"`
	HighQueueSize       int `json:"high_queue_size,omitempty"`
	NormalQueueSize     int `json:"normal_queue_size,omitempty"`
	LowQueueSize        int `json:"low_queue_size,omitempty"`
	BackgroundQueueSize int `json:"background_queue_size,omitempty"`

	// Enabled-by-default toggles; pointers distinguish "omitted" from an
	// explicit false.
	EnableAdaptiveScheduling *bool `json:"enable_adaptive_scheduling,omitempty"`
	EnableResourceLimits     *bool `json:"enable_resource_limits,omitempty"`
	EnableMonitoring         *bool `json:"enable_monitoring,omitempty"`

	MaxMemoryMB     uint64 `json:"max_memory_mb,omitempty"`
	MaxCPUPercent   uint64 `json:"max_cpu_percent,omitempty"`
	MaxIOOperations uint64 `json:"max_io_operations,omitempty"`

	MonitorInterval    string `json:"monitor_interval,omitempty"`
	AdjustmentInterval string `json:"adjustment_interval,omitempty"`

	CPUThresholdHigh    float64 `json:"cpu_threshold_high,omitempty"`
	CPUThresholdLow     float64 `json:"cpu_threshold_low,omitempty"`
	MemoryThresholdHigh float64 `json:"memory_threshold_high,omitempty"`
	MemoryThresholdLow  float64 `json:"memory_threshold_low,omitempty"`

	DefaultTaskTimeout    string `json:"default_task_timeout,omitempty"`
	CriticalTaskTimeout   string `json:"critical_task_timeout,omitempty"`
	BackgroundTaskTimeout string `json:"background_task_timeout,omitempty"`
}

// ToPool converts the section into the runtime pool config, parsing all
// duration strings.
func (c PoolConfig) ToPool() (pool.Config, error) {
	out := pool.DefaultConfig()

	if c.MinThreads > 0 {
		out.MinThreads = c.MinThreads
	}
	if c.MaxThreads > 0 {
		out.MaxThreads = c.MaxThreads
	}
	if c.QueueSize > 0 {
		out.QueueSize = c.QueueSize
	}
	if c.CriticalQueueSize > 0 {
		out.CriticalQueueSize = c.CriticalQueueSize
	}
	if c.HighQueueSize > 0 {
		out.HighQueueSize = c.HighQueueSize
	}
	if c.NormalQueueSize > 0 {
		out.NormalQueueSize = c.NormalQueueSize
	}
	if c.LowQueueSize > 0 {
		out.LowQueueSize = c.LowQueueSize
	}
	if c.BackgroundQueueSize > 0 {
		out.BackgroundQueueSize = c.BackgroundQueueSize
	}
	if c.EnableAdaptiveScheduling != nil {
		out.EnableAdaptiveScheduling = *c.EnableAdaptiveScheduling
	}
	if c.EnableResourceLimits != nil {
		out.EnableResourceLimits = *c.EnableResourceLimits
	}
	if c.EnableMonitoring != nil {
		out.EnableMonitoring = *c.EnableMonitoring
	}
	if c.MaxMemoryMB > 0 {
		out.MaxMemoryMB = c.MaxMemoryMB
	}
	if c.MaxCPUPercent > 0 {
		out.MaxCPUPercent = c.MaxCPUPercent
	}
	if c.MaxIOOperations > 0 {
		out.MaxIOOperations = c.MaxIOOperations
	}
	if c.CPUThresholdHigh > 0 {
		out.CPUThresholdHigh = c.CPUThresholdHigh
	}
	if c.CPUThresholdLow > 0 {
		out.CPUThresholdLow = c.CPUThresholdLow
	}
	if c.MemoryThresholdHigh > 0 {
		out.MemoryThresholdHigh = c.MemoryThresholdHigh
	}
	if c.MemoryThresholdLow > 0 {
		out.MemoryThresholdLow = c.MemoryThresholdLow
	}

	var err error
	if out.MonitorInterval, err = ParseDurationOrDefault("pool.monitor_interval", c.MonitorInterval, out.MonitorInterval); err != nil {
		return out, err
	}
	if out.AdjustmentInterval, err = ParseDurationOrDefault("pool.adjustment_interval", c.AdjustmentInterval, out.AdjustmentInterval); err != nil {
		return out, err
	}
	if out.DefaultTaskTimeout, err = ParseDurationOrDefault("pool.default_task_timeout", c.DefaultTaskTimeout, out.DefaultTaskTimeout); err != nil {
		return out, err
	}
	if out.CriticalTaskTimeout, err = ParseDurationOrDefault("pool.critical_task_timeout", c.CriticalTaskTimeout, out.CriticalTaskTimeout); err != nil {
		return out, err
	}
	if out.BackgroundTaskTimeout, err = ParseDurationOrDefault("pool.background_task_timeout", c.BackgroundTaskTimeout, out.BackgroundTaskTimeout); err != nil {
		return out, err
	}
	return out, nil
}

// MaintenanceConfig declares recurring maintenance jobs. The job callables
// are registered in code; the file only binds a schedule and scheduling
// parameters to each registered name.
type MaintenanceConfig struct {
	Enabled  bool             `json:"enabled"`
	Timezone string           `json:"timezone,omitempty"`
	Jobs     []MaintenanceJob `json:"jobs,omitempty"`
}

type MaintenanceJob struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Priority string `json:"priority,omitempty"` // defaults to "low"
	Timeout  string `json:"timeout,omitempty"`
}

// ParsePriority maps a config string onto a scheduling class.
func ParsePriority(s string) (pool.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return pool.Critical, nil
	case "high":
		return pool.High, nil
	case "", "normal":
		return pool.Normal, nil
	case "low":
		return pool.Low, nil
	case "background":
		return pool.Background, nil
	default:
		return pool.Normal, fmt.Errorf("unknown priority %q", s)
	}
}

type HistoryConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`

	// Retention bounds pruning by the maintenance job; 0 keeps everything.
	Retention string `json:"retention,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen,omitempty"` // defaults to ":9187"
}

// Validate performs cross-section sanity checks before a config is
// committed or published.
func (c *Config) Validate() error {
	pc, err := c.Pool.ToPool()
	if err != nil {
		return err
	}
	if pc.MinThreads > pc.MaxThreads {
		return fmt.Errorf("pool: min_threads (%d) > max_threads (%d)", pc.MinThreads, pc.MaxThreads)
	}
	if c.Maintenance != nil {
		for _, j := range c.Maintenance.Jobs {
			if strings.TrimSpace(j.Name) == "" {
				return fmt.Errorf("maintenance: job with empty name")
			}
			if strings.TrimSpace(j.Schedule) == "" {
				return fmt.Errorf("maintenance: job %q has no schedule", j.Name)
			}
			if _, err := ParsePriority(j.Priority); err != nil {
				return fmt.Errorf("maintenance: job %q: %w", j.Name, err)
			}
			if _, err := ParseDurationField("maintenance.jobs.timeout", j.Timeout); err != nil {
				return err
			}
		}
	}
	if c.History != nil && c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		return fmt.Errorf("history: path is required when enabled")
	}
	return nil
}
