package config

import (
	"strings"
	"time"

	"classalarm/internal/alarm"
	"classalarm/internal/cache"
	"classalarm/internal/storage"
	"classalarm/internal/task/scheduler"
	logx "classalarm/pkg/logx"
)

const (
	DefaultCheckEvery  = "@every 60s"
	DefaultTickTimeout = 50 * time.Second
)

// Runtime conversions. Durations were checked by Validate, so the parse
// errors returned here only surface for configs that skipped it.

func (c LoggingConfig) Runtime() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		JSON:    c.JSON,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    strings.TrimSpace(c.File.Path),
		},
	}
}

func (c SchedulerConfig) CheckSpec() string {
	if s := strings.TrimSpace(c.CheckEvery); s != "" {
		return s
	}
	return DefaultCheckEvery
}

func (c SchedulerConfig) Runtime() (scheduler.Config, error) {
	timeout, err := ParseDurationOrDefault("scheduler.tick_timeout", c.TickTimeout, DefaultTickTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Timezone:       strings.TrimSpace(c.Timezone),
		DefaultTimeout: timeout,
		HistorySize:    c.HistorySize,
	}, nil
}

// Location resolves the configured timezone; empty means time.Local.
func (c SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func (c AlarmConfig) Runtime(loc *time.Location) (alarm.EvaluatorConfig, error) {
	ttl, err := ParseDurationField("alarm.dedup_ttl", c.DedupTTL)
	if err != nil {
		return alarm.EvaluatorConfig{}, err
	}
	late, err := ParseDurationField("alarm.max_lateness", c.MaxLateness)
	if err != nil {
		return alarm.EvaluatorConfig{}, err
	}
	return alarm.EvaluatorConfig{Location: loc, DedupTTL: ttl, MaxLateness: late}, nil
}

func (c StorageConfig) Runtime() (storage.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(c.Driver),
		Path:        strings.TrimSpace(c.Path),
		BusyTimeout: busy,
	}, nil
}

func (c CacheConfig) Runtime() (cache.Config, error) {
	inboxTTL, err := ParseDurationField("cache.inbox_ttl", c.InboxTTL)
	if err != nil {
		return cache.Config{}, err
	}
	dial, err := ParseDurationField("cache.redis.dial_timeout", c.Redis.DialTimeout)
	if err != nil {
		return cache.Config{}, err
	}
	return cache.Config{
		Driver: strings.TrimSpace(c.Driver),
		Redis: cache.RedisConfig{
			Addr:        strings.TrimSpace(c.Redis.Addr),
			Password:    c.Redis.Password,
			DB:          c.Redis.DB,
			KeyPrefix:   c.Redis.KeyPrefix,
			DialTimeout: dial,
		},
		InboxTTL:    inboxTTL,
		InboxMaxLen: c.InboxMaxLen,
	}, nil
}
