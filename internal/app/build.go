package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"classalarm/internal/alarm"
	"classalarm/internal/api"
	"classalarm/internal/cache"
	"classalarm/internal/config"
	"classalarm/internal/storage"
	"classalarm/internal/task/scheduler"
	logx "classalarm/pkg/logx"
)

const (
	pruneEvery   = "@every 10m"
	pruneTimeout = 30 * time.Second
)

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := cfg.Storage.Runtime()
	if err != nil {
		return nil, err
	}
	if sc.BusyTimeout <= 0 {
		sc.BusyTimeout = time.Second
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return st, nil
}

func openCache(ctx context.Context, cfg *config.Config, log logx.Logger) (cache.Backend, error) {
	cc, err := cfg.Cache.Runtime()
	if err != nil {
		return nil, err
	}
	be, err := cache.Open(ctx, cc, log)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return be, nil
}

func apiConfig(c config.APIConfig) api.Config {
	out := api.Config{Addr: c.Addr, CheckBurst: c.Burst}
	for _, r := range c.CheckRoles {
		out.CheckRoles = append(out.CheckRoles, alarm.Role(strings.ToLower(strings.TrimSpace(r))))
	}
	if c.CheckRatePerSec > 0 {
		out.CheckRate = rate.Limit(c.CheckRatePerSec)
	}
	return out
}

// checkScheduleValid registers spec on a throwaway scheduler so cron syntax
// errors surface before a reload is committed.
func checkScheduleValid(spec string) error {
	probe := scheduler.New(scheduler.Config{}, logx.Nop(), nil)
	_, err := probe.AddSchedule("probe", spec, 0, func(context.Context) error { return nil })
	return err
}

// validateReload rejects configs whose runtime pieces cannot be built.
func validateReload(_ context.Context, cfg *config.Config) error {
	if err := checkScheduleValid(cfg.Scheduler.CheckSpec()); err != nil {
		return fmt.Errorf("scheduler.check_every: %w", err)
	}
	if _, err := cfg.Scheduler.Runtime(); err != nil {
		return err
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if _, err := cfg.Alarm.Runtime(loc); err != nil {
		return err
	}
	return nil
}
