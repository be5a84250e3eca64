package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"airsync/internal/clock"
	"airsync/internal/config"
	"airsync/internal/eventbus"
	"airsync/internal/jobs"
	"airsync/internal/observability/ops"
	"airsync/internal/runtime/supervisor"
	"airsync/internal/schedule"
	"airsync/internal/scheduler"
	"airsync/internal/storage"
	logx "airsync/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus     eventbus.Bus
	store   storage.Store
	creator *jobs.DefaultCreator
	sched   *scheduler.Service
	ops     *ops.Service
}

// New loads the config and wires every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	oc, err := mapOpsConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, clock.System{}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bus := eventbus.New()

	creator := jobs.NewDefaultCreator(store, log.With(logx.String("comp", "jobs")))
	sched := scheduler.New(
		mapSchedulerConfig(cfg),
		func() config.WorkspaceConfig { return cfgm.Get().Workspace },
		store,
		creator,
		schedule.NewPredicate(clock.System{}),
		log.With(logx.String("comp", "scheduler")),
		scheduler.WithMetrics(scheduler.NewMetrics(reg)),
		scheduler.WithBus(bus),
	)
	opsSvc := ops.New(oc, ops.Deps{Jobs: store, Trigger: sched, Gatherer: reg}, log.With(logx.String("comp", "ops")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		creator: creator,
		sched:   sched,
		ops:     opsSvc,
	}, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Store() storage.Store { return a.store }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the ops server, the scheduling loop and the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.ops.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("start ops server: %w", err)
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		a.ops.Stop(context.Background())
		return fmt.Errorf("start scheduler: %w", err)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				switch d := e.Data.(type) {
				case eventbus.JobEnqueued:
					a.log.Debug("event", logx.String("type", e.Type), logx.Int64("job_id", d.JobID),
						logx.String("connection_id", d.ConnectionID), logx.String("trigger", d.Trigger))
				default:
					a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig hot-applies logging and scheduler changes. Storage changes are
// only logged; the store is opened once.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(newCfg))
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "scheduler":
			if err := a.sched.Apply(ctx, mapSchedulerConfig(newCfg)); err != nil {
				a.log.Warn("scheduler config not applied", logx.Err(err))
			}
		case "ops":
			oc, err := mapOpsConfig(newCfg)
			if err == nil {
				err = a.ops.Reconfigure(ctx, oc)
			}
			if err != nil {
				a.log.Warn("ops config not applied", logx.Err(err))
			}
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in reverse start order. Each step is bounded so
// one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("ops", 3*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error {
			err := a.sup.Wait(c)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
