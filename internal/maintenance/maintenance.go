// Package maintenance submits recurring maintenance work (checkpointing,
// pruning, statistics refresh) to the scheduler on cron schedules.
//
// The service is trigger-only: it owns no workers. Each fire enqueues the
// registered callable through the pool's submission API at the job's
// configured priority, so maintenance competes for workers under exactly the
// same policy as everything else.
package maintenance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sealdb/internal/config"
	"sealdb/internal/pool"
	logx "sealdb/pkg/logx"
)

// JobFunc is a registered maintenance callable.
type JobFunc func(ctx context.Context) error

type Service struct {
	mu   sync.Mutex
	cfg  config.MaintenanceConfig
	log  logx.Logger
	pool *pool.Pool

	parser cron.Parser
	c      *cron.Cron
	jobs   map[string]JobFunc

	// Throttles per-job enqueue warnings when the pool keeps rejecting.
	lastWarn map[string]time.Time
}

func New(cfg config.MaintenanceConfig, p *pool.Pool, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg,
		log:  log.With(logx.String("comp", "maintenance")),
		pool: p,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:     map[string]JobFunc{},
		lastWarn: map[string]time.Time{},
	}
}

// Register binds a callable to a job name declared in the config. Must be
// called before Start; unknown config names are skipped with a warning.
func (s *Service) Register(name string, fn JobFunc) {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return
	}
	s.mu.Lock()
	s.jobs[name] = fn
	s.mu.Unlock()
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("maintenance: timezone %q: %w", tz, err)
		}
		loc = l
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	registered := 0
	for _, jc := range s.cfg.Jobs {
		jc := jc
		fn := s.jobs[jc.Name]
		if fn == nil {
			s.log.Warn("maintenance job has no registered callable", logx.String("job", jc.Name))
			continue
		}
		pri, err := config.ParsePriority(jc.Priority)
		if err != nil {
			return fmt.Errorf("maintenance: job %q: %w", jc.Name, err)
		}
		timeout, err := config.ParseDurationField("maintenance.jobs.timeout", jc.Timeout)
		if err != nil {
			return err
		}

		job := cron.FuncJob(func() { s.enqueue(jc.Name, fn, pri, timeout) })
		if _, err := c.AddJob(jc.Schedule, job); err != nil {
			return fmt.Errorf("maintenance: job %q schedule %q: %w", jc.Name, jc.Schedule, err)
		}
		registered++
	}

	s.c = c
	c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("jobs", registered))
	return nil
}

func (s *Service) enqueue(name string, fn JobFunc, pri pool.Priority, timeout time.Duration) {
	err := s.pool.SubmitWithPriority(func(ctx context.Context) error {
		return fn(ctx)
	}, pri, pool.TypeMaintenance, name, timeout)
	if err == nil {
		return
	}

	// Rejection here means the pool is saturated; the next fire retries
	// naturally, so just surface it (throttled per job).
	s.mu.Lock()
	last := s.lastWarn[name]
	now := time.Now()
	warn := now.Sub(last) >= time.Minute
	if warn {
		s.lastWarn[name] = now
	}
	s.mu.Unlock()
	if warn {
		s.log.Warn("maintenance enqueue failed", logx.String("job", name), logx.Err(err))
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("service stopped")
}
