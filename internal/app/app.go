// Package app wires the scheduler, its services, and the config manager
// into one runnable unit.
package app

import (
	"context"
	"fmt"
	"time"

	"sealdb/internal/config"
	"sealdb/internal/eventbus"
	"sealdb/internal/history"
	"sealdb/internal/maintenance"
	"sealdb/internal/metrics"
	"sealdb/internal/pool"
	"sealdb/internal/runtime/supervisor"
	logx "sealdb/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus  eventbus.Bus
	pool *pool.Pool

	histStore *history.Store
	histSvc   *history.Service
	maint     *maintenance.Service
	metrics   *metrics.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.ToLogx())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	poolCfg, err := cfg.Pool.ToPool()
	if err != nil {
		return nil, err
	}
	p, err := pool.New(poolCfg, log.With(logx.String("comp", "pool")), bus)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		pool:    p,
		metrics: metrics.NewService(log),
	}

	if cfg.History != nil && cfg.History.Enabled {
		busyTimeout, err := config.ParseDurationOrDefault("history.busy_timeout", cfg.History.BusyTimeout, 5*time.Second)
		if err != nil {
			return nil, err
		}
		store, err := history.Open(history.Config{
			Path:        cfg.History.Path,
			BusyTimeout: busyTimeout,
		}, log.With(logx.String("comp", "history")))
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		a.histStore = store
		a.histSvc = history.NewService(store, log.With(logx.String("comp", "history")))
	}

	if cfg.Maintenance != nil {
		a.maint = maintenance.New(*cfg.Maintenance, p, log)
		if a.histStore != nil {
			retention, err := config.ParseDurationOrDefault("history.retention", cfg.History.Retention, 7*24*time.Hour)
			if err != nil {
				return nil, err
			}
			store := a.histStore
			a.maint.Register("history.prune", func(ctx context.Context) error {
				n, err := store.Prune(ctx, time.Now().Add(-retention))
				if err != nil {
					return err
				}
				if n > 0 {
					log.Debug("history pruned", logx.Int64("rows", n))
				}
				return nil
			})
		}
	}

	return a, nil
}

// Pool exposes the scheduler for callers embedding the app.
func (a *App) Pool() *pool.Pool { return a.pool }

// Maintenance returns the cron service so callers can register job
// callables before Start. Nil when the config has no maintenance section.
func (a *App) Maintenance() *maintenance.Service { return a.maint }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	cfg := a.cfgm.Get()

	if a.histSvc != nil {
		a.histSvc.Start(a.sup.Context(), a.bus)
	}
	if a.maint != nil {
		if err := a.maint.Start(); err != nil {
			return err
		}
	}
	if cfg.Metrics != nil {
		if err := a.metrics.Start(a.sup.Context(), *cfg.Metrics, a.pool); err != nil {
			return err
		}
	}

	// Hot reload fan-out: logging, resource limits, and pool bounds apply
	// live; structural changes (queue sizes, intervals) need a restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.apply(newCfg)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("started")
	return nil
}

func (a *App) apply(cfg *config.Config) {
	a.logs.Apply(cfg.Logging.ToLogx())

	pc, err := cfg.Pool.ToPool()
	if err != nil {
		// Validated before publish; should not happen.
		a.log.Warn("pool section rejected on reload", logx.Err(err))
		return
	}
	if pc.EnableResourceLimits {
		a.pool.SetResourceLimits(pc.MaxMemoryMB, pc.MaxCPUPercent, pc.MaxIOOperations)
	}
	if err := a.pool.Resize(pc.MinThreads, pc.MaxThreads); err != nil {
		a.log.Warn("pool resize rejected on reload", logx.Err(err))
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	if a.maint != nil {
		a.maint.Stop(ctx)
	}
	a.pool.Stop(ctx)
	if a.histSvc != nil {
		a.histSvc.Stop()
	}
	a.metrics.Stop(ctx)

	err := a.sup.Wait(ctx)

	if a.histStore != nil {
		if cerr := a.histStore.Close(); cerr != nil {
			a.log.Warn("history close", logx.Err(cerr))
		}
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}
