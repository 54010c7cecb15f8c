// Package app wires configuration, storage, the schedule controller, the
// dispatch loop and the operator surfaces into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"finalword/internal/config"
	"finalword/internal/dispatch"
	"finalword/internal/eventbus"
	"finalword/internal/metrics"
	"finalword/internal/notifier"
	"finalword/internal/observability/ops"
	"finalword/internal/query"
	"finalword/internal/runtime/supervisor"
	"finalword/internal/schedule"
	"finalword/internal/storage"
	"finalword/internal/task/scheduler"
	"finalword/internal/transport/telegram"
	logx "finalword/pkg/logx"
)

// dispatchSchedule is the scheduler entry that triggers dispatch runs.
const dispatchSchedule = "dispatch"

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	ctl   *schedule.Controller
	query *query.Service
	notif *notifier.Service
	disp  *dispatch.Dispatcher
	sched *scheduler.Service
	ops   *ops.Service
	fwd   *eventbus.Forwarder

	sup      *supervisor.Supervisor
	stopOnce sync.Once
	lastRun  atomic.Pointer[dispatch.Report]

	// guarded by reload goroutine
	appliedSchedule string
}

// New loads the config at cfgPath and builds every component. Nothing runs
// in the background until Start; one-shot commands use the accessors
// directly and call Close.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateMapped(cfg); err != nil {
		return nil, err
	}

	// The alert sink needs the bot before the logging service exists, so the
	// sender gets a bootstrap console logger.
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	var sender logx.Sender
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, bootLog)
		if err != nil {
			return nil, err
		}
		sender = tg
	}
	logSvc, root := logx.New(mapLogConfig(cfg), sender)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root)

	metrics.Register()
	bus := eventbus.New()

	sc, _ := mapStorageConfig(cfg)
	store, err := storage.Open(ctx, sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	nc, _ := mapNotifierConfig(cfg)
	tr, _ := newTransport(nc, root)
	notif := notifier.New(nc, tr, root, bus, store)

	dc, _ := mapDispatchConfig(cfg)
	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		store: store,
		ctl:   schedule.NewController(store, schedule.WithLogger(root), schedule.WithBus(bus)),
		query: query.New(store),
		notif: notif,
		disp:  dispatch.New(store, notif, dc, dispatch.WithLogger(root), dispatch.WithBus(bus)),
		sched: scheduler.New(mapSchedulerConfig(cfg), root),
	}
	a.ops = ops.New(mapOpsConfig(cfg), root, ops.WithHealth(store.Ping), ops.WithStatus(a.status))

	if err := a.sched.Register(dispatchSchedule, cfg.Dispatch.Schedule, 0, a.runDispatch); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("dispatch.schedule: %w", err)
	}
	a.appliedSchedule = cfg.Dispatch.Schedule
	return a, nil
}

func (a *App) Config() *config.Config           { return a.cfgm.Get() }
func (a *App) Logger() logx.Logger              { return a.log }
func (a *App) Store() storage.Store             { return a.store }
func (a *App) Controller() *schedule.Controller { return a.ctl }
func (a *App) Query() *query.Service            { return a.query }
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunDispatch performs a single dispatch pass outside the scheduler.
func (a *App) RunDispatch(ctx context.Context) (dispatch.Report, error) {
	rep, err := a.disp.Run(ctx)
	a.lastRun.Store(&rep)
	return rep, err
}

func (a *App) runDispatch(ctx context.Context) error {
	_, err := a.RunDispatch(ctx)
	return err
}

// Start launches the scheduler, the ops server, the event forwarder and the
// config watcher under one supervisor, then reports readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMapped(cfg)
	})

	a.sched.Start(c)
	a.ops.Start(c)

	cfg := a.cfgm.Get()
	if url := strings.TrimSpace(cfg.Events.NATSURL); url != "" {
		fwd, err := eventbus.DialForwarder(url, cfg.Events.SubjectPrefix, a.log.With(logx.String("comp", "events")))
		if err != nil {
			// Events are best-effort; the scheduling core runs without them.
			a.log.Warn("event forwarding disabled", logx.Err(err))
		} else {
			a.fwd = fwd
			a.sup.Go("events.forward", func(c context.Context) error {
				fwd.Run(c, a.bus)
				return nil
			})
		}
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// debug-level; dispatch runs every minute
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.startWatchdog()
	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("config", a.cfgm.Path()),
		logx.Bool("dispatch", cfg.Dispatch.Enabled), logx.String("schedule", cfg.Dispatch.Schedule))
	return nil
}

// reloadLoop applies published configs until c ends.
func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
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
			a.apply(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) apply(c context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range restart {
		a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
	}

	a.logs.Apply(mapLogConfig(next))

	if dc, err := mapDispatchConfig(next); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dc)
	}

	if nc, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(nc)
	}

	a.applyScheduler(c, next)
	a.ops.Reconfigure(c, mapOpsConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyScheduler swaps timezone and the dispatch schedule live, and starts
// or stops triggering when dispatch.enabled flips.
func (a *App) applyScheduler(c context.Context, next *config.Config) {
	wasEnabled := a.sched.Enabled()
	a.sched.Apply(mapSchedulerConfig(next))

	if next.Dispatch.Schedule != a.appliedSchedule {
		if err := a.sched.Register(dispatchSchedule, next.Dispatch.Schedule, 0, a.runDispatch); err != nil {
			a.log.Warn("dispatch schedule rejected; keeping previous", logx.String("schedule", next.Dispatch.Schedule), logx.Err(err))
		} else {
			a.appliedSchedule = next.Dispatch.Schedule
		}
	}

	switch {
	case wasEnabled && !next.Dispatch.Enabled:
		a.log.Info("dispatch disabled via config")
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !wasEnabled && next.Dispatch.Enabled:
		a.log.Info("dispatch enabled via config")
		a.sched.Start(c)
	}
}

// status is served on /status.
func (a *App) status() any {
	out := map[string]any{
		"scheduler": a.sched.Snapshot(),
		"notifier":  a.notif.Snapshot(),
	}
	if rep := a.lastRun.Load(); rep != nil {
		out["last_dispatch"] = rep
	}
	if a.sup != nil {
		out["goroutines"] = a.sup.Snapshot()
	}
	return out
}

// Stop shuts components down in dependency order. Each step is bounded so
// one stuck component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "events", time.Second, func(context.Context) error { return a.fwd.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error {
		if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	a.log.Info("stopped")
	return a.Close()
}

// Close releases storage and logging sinks. Safe to call more than once.
func (a *App) Close() error {
	var err error
	a.stopOnce.Do(func() {
		if a.store != nil {
			err = a.store.Close()
		}
		if a.logs != nil {
			_ = a.logs.Close()
		}
	})
	return err
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)))
	}
}
