package app

import (
	"context"
	"slices"
	"strings"

	"classalarm/internal/config"
	logx "classalarm/pkg/logx"
)

// reloadLoop applies hot-reloaded configs. Logging, scheduler and alarm
// settings change live; storage, cache, api and systemd need a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.sd.Reloading()
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
			a.sd.Ready()
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	if slices.Contains(sections, "logging") {
		a.logs.Apply(newCfg.Logging.Runtime())
	}

	if slices.Contains(sections, "scheduler") {
		if sc, err := newCfg.Scheduler.Runtime(); err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			a.sched.Apply(sc)
		}
		if oldCfg.Scheduler.CheckSpec() != newCfg.Scheduler.CheckSpec() {
			if err := a.registerCheck(newCfg.Scheduler.CheckSpec()); err != nil {
				a.log.Warn("check schedule not updated", logx.Err(err))
			}
		}
	}

	// The evaluator reads the timezone too, so a scheduler change reapplies it.
	if slices.Contains(sections, "alarm") || slices.Contains(sections, "scheduler") {
		loc, err := newCfg.Scheduler.Location()
		if err != nil {
			a.log.Warn("invalid timezone; keeping previous", logx.Err(err))
		} else if ec, err := newCfg.Alarm.Runtime(loc); err != nil {
			a.log.Warn("invalid alarm config; keeping previous", logx.Err(err))
		} else {
			a.alarms.Apply(ec)
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
