package app

import (
	"context"
	"errors"

	"classalarm/internal/cache"
	"classalarm/internal/task/scheduler"
	logx "classalarm/pkg/logx"
)

const (
	jobAlarmCheck = "alarm.check"
	jobCachePrune = "cache.prune"
)

// checkJob runs one evaluation pass. Store failures propagate so the
// scheduler records the tick as failed; the next tick retries.
func (a *App) checkJob(ctx context.Context) error {
	rep, err := a.alarms.CheckNow(ctx)
	if err != nil {
		return err
	}
	if rep.Count() > 0 {
		a.log.Info("alarm check", logx.Int("sent", rep.Count()))
	} else {
		a.log.Trace("alarm check", logx.Int("sent", 0))
	}
	return nil
}

func (a *App) registerCheck(spec string) error {
	_, err := a.sched.AddScheduleOpt(jobAlarmCheck, spec, 0,
		scheduler.TaskOptions{Overlap: scheduler.OverlapSkipIfRunning}, a.checkJob)
	return err
}

// registerJobs installs the tick driver and, for the in-process cache, the
// expiry sweep. Redis expires keys itself.
func (a *App) registerJobs() error {
	if err := a.registerCheck(a.cfgm.Get().Scheduler.CheckSpec()); err != nil {
		return err
	}

	mem, ok := a.cache.(*cache.Memory)
	if !ok {
		return nil
	}
	_, err := a.sched.AddScheduleOpt(jobCachePrune, pruneEvery, pruneTimeout,
		scheduler.TaskOptions{StartupSpread: true},
		func(ctx context.Context) error {
			n, err := mem.Prune(ctx)
			if errors.Is(err, cache.ErrClosed) {
				return nil
			}
			if n > 0 {
				a.log.Debug("cache pruned", logx.Int("removed", n))
			}
			return err
		})
	return err
}
