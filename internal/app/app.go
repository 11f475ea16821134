package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"classalarm/internal/alarm"
	"classalarm/internal/api"
	"classalarm/internal/cache"
	"classalarm/internal/config"
	"classalarm/internal/eventbus"
	"classalarm/internal/runtime/supervisor"
	"classalarm/internal/storage"
	"classalarm/internal/task/scheduler"
	logx "classalarm/pkg/logx"
	"classalarm/pkg/systemd"
)

// ErrSharedCacheRequired is returned by CheckOnce on the in-process cache:
// every one-shot run is a fresh process, so its dedup markers and inbox
// payloads would be gone by the next run.
var ErrSharedCacheRequired = errors.New("one-shot check needs a shared cache (cache.driver: redis)")

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	cache  cache.Backend
	alarms *alarm.Service
	sched  *scheduler.Service
	api    *api.Server
	sd     *systemd.Notifier
}

// NewApp loads the config (plus a .env file next to it), opens storage and
// the cache, and wires the alarm service. Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	if _, err := config.LoadDotEnv(filepath.Join(filepath.Dir(cfgPath), ".env")); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logSvc, root := logx.New(cfg.Logging.Runtime())
	log := root.With(logx.String("comp", "app"))

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	evalCfg, err := cfg.Alarm.Runtime(loc)
	if err != nil {
		return nil, err
	}
	schedCfg, err := cfg.Scheduler.Runtime()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	be, err := openCache(ctx, cfg, root.With(logx.String("comp", "cache")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	alarms := alarm.NewService(evalCfg, alarm.Deps{
		Store:       store,
		Preferences: store,
		Audit:       store,
		Dedup:       be,
		Inbox:       be,
		Bus:         bus,
		Log:         root.With(logx.String("comp", "alarm")),
	})

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		cache:   be,
		alarms:  alarms,
		sched:   scheduler.New(schedCfg, root.With(logx.String("comp", "scheduler")), bus),
		sd:      systemd.NewNotifier(cfg.Systemd.Notify, root.With(logx.String("comp", "systemd"))),
	}
	if cfg.API.Enabled {
		a.api = api.New(apiConfig(cfg.API), alarms, map[string]api.Pinger{
			"storage": store,
			"cache":   be,
		}, root.With(logx.String("comp", "api")))
	}
	log.Info("app initialized",
		logx.String("storage", cfg.Storage.Driver),
		logx.String("cache", cfg.Cache.Driver),
		logx.String("tz", loc.String()),
		logx.Bool("api", cfg.API.Enabled),
	)
	return a, nil
}

// Alarms exposes the service for one-shot callers such as the -check flag.
func (a *App) Alarms() *alarm.Service { return a.alarms }

// CheckOnce runs a single evaluation pass without starting the scheduler.
// It refuses to run on the memory cache; see ErrSharedCacheRequired.
func (a *App) CheckOnce(ctx context.Context) (alarm.Report, error) {
	if _, local := a.cache.(*cache.Memory); local {
		return alarm.Report{}, ErrSharedCacheRequired
	}
	return a.alarms.CheckNow(ctx)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	if err := a.registerJobs(); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())

	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	if a.api != nil {
		a.sup.GoRestart("api", a.api.Run,
			supervisor.WithRestartBackoff(time.Second, 30*time.Second),
			supervisor.WithMaxRestarts(5),
		)
	}

	cfg := a.cfgm.Get()
	a.sd.Ready()
	a.sd.Status("checking alarms " + cfg.Scheduler.CheckSpec())
	if cfg.Systemd.Watchdog {
		if every := systemd.WatchdogInterval(); every > 0 {
			a.sup.Go0("systemd.watchdog", func(c context.Context) {
				a.sd.RunWatchdog(c, every, a.store.Ping)
			})
		}
	}

	a.log.Info("app started", logx.String("check_every", cfg.Scheduler.CheckSpec()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	if a.sup != nil {
		a.sup.Cancel()
	}

	// step bounds one shutdown stage so a stuck component can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 6*time.Second, a.sup.Wait)
	}
	step("cache", time.Second, func(context.Context) error { return a.cache.Close() })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Close releases storage and the cache for callers that never called Start.
func (a *App) Close() error {
	cerr := a.cache.Close()
	serr := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	if serr != nil {
		return serr
	}
	return cerr
}
