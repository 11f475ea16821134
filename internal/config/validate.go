package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"classalarm/internal/task/scheduler"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field constraints and the cross-field rules a tag cannot
// express. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", trimNamespace(fe.Namespace()), fe.Tag(), redact(fe)))
			}
		} else {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path: required for sqlite"))
		}
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Cache.Driver), "redis") && strings.TrimSpace(cfg.Cache.Redis.Addr) == "" {
		errs = append(errs, errors.New("cache.redis.addr: required for redis"))
	}

	if s := strings.TrimSpace(cfg.Scheduler.CheckEvery); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.check_every: %w", err))
		}
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	for path, raw := range map[string]string{
		"scheduler.tick_timeout":   cfg.Scheduler.TickTimeout,
		"alarm.dedup_ttl":          cfg.Alarm.DedupTTL,
		"alarm.max_lateness":       cfg.Alarm.MaxLateness,
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
		"cache.inbox_ttl":          cfg.Cache.InboxTTL,
		"cache.redis.dial_timeout": cfg.Cache.Redis.DialTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func trimNamespace(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func redact(fe validator.FieldError) any {
	if strings.Contains(strings.ToLower(fe.Field()), "password") {
		return "<redacted>"
	}
	return fe.Value()
}
