package config

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	logx "classalarm/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes the redis password),
// and (3) the sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	restart := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 20)

	o, n := oldCfg.Logging, newCfg.Logging
	if o.Level != n.Level || o.Console != n.Console || o.JSON != n.JSON ||
		o.File.Enabled != n.File.Enabled ||
		strings.TrimSpace(o.File.Path) != strings.TrimSpace(n.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Level),
			logx.Bool("logging.console", n.Console),
			logx.Bool("logging.json", n.JSON),
			logx.Bool("logging.file_enabled", n.File.Enabled),
		)
	}

	oSched, nSched := oldCfg.Scheduler, newCfg.Scheduler
	if oSched.CheckSpec() != nSched.CheckSpec() ||
		strings.TrimSpace(oSched.TickTimeout) != strings.TrimSpace(nSched.TickTimeout) ||
		strings.TrimSpace(oSched.Timezone) != strings.TrimSpace(nSched.Timezone) ||
		oSched.HistorySize != nSched.HistorySize {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.check_every", nSched.CheckSpec()),
			logx.String("scheduler.tick_timeout", strings.TrimSpace(nSched.TickTimeout)),
			logx.String("scheduler.timezone", strings.TrimSpace(nSched.Timezone)),
			logx.Int("scheduler.history_size", nSched.HistorySize),
		)
	}

	if oldCfg.Alarm != newCfg.Alarm {
		changed = append(changed, "alarm")
		attrs = append(attrs,
			logx.String("alarm.dedup_ttl", strings.TrimSpace(newCfg.Alarm.DedupTTL)),
			logx.String("alarm.max_lateness", strings.TrimSpace(newCfg.Alarm.MaxLateness)),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	oc, nc := oldCfg.Cache, newCfg.Cache
	if oc != nc {
		changed = append(changed, "cache")
		restart = append(restart, "cache")
		attrs = append(attrs,
			logx.String("cache.driver", strings.TrimSpace(nc.Driver)),
			logx.String("cache.redis.addr", strings.TrimSpace(nc.Redis.Addr)),
			logx.Int("cache.redis.db", nc.Redis.DB),
			logx.Bool("cache.redis.password_set", nc.Redis.Password != ""),
			logx.Bool("cache.redis.password_changed", oc.Redis.Password != nc.Redis.Password),
			logx.String("cache.inbox_ttl", strings.TrimSpace(nc.InboxTTL)),
			logx.Int("cache.inbox_max_len", nc.InboxMaxLen),
		)
	}

	if apiChanged(oldCfg.API, newCfg.API) {
		changed = append(changed, "api")
		restart = append(restart, "api")
		attrs = append(attrs,
			logx.Bool("api.enabled", newCfg.API.Enabled),
			logx.String("api.addr", strings.TrimSpace(newCfg.API.Addr)),
			logx.String("api.check_roles", strings.Join(newCfg.API.CheckRoles, ",")),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		restart = append(restart, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}

func apiChanged(a, b APIConfig) bool {
	if !slices.Equal(a.CheckRoles, b.CheckRoles) {
		return true
	}
	a.CheckRoles, b.CheckRoles = nil, nil
	return !reflect.DeepEqual(a, b)
}
