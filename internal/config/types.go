package config

// Config is the on-disk daemon configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "50s", "1h").
// Empty strings fall back to the runtime defaults of the component.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Alarm     AlarmConfig     `json:"alarm"`
	Storage   StorageConfig   `json:"storage"`
	Cache     CacheConfig     `json:"cache"`
	API       APIConfig       `json:"api"`
	Systemd   SystemdConfig   `json:"systemd,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// SchedulerConfig controls the tick driver.
//
// Defaults (when fields are omitted/zero):
//   - check_every: "@every 60s"
//   - tick_timeout: "50s"
//   - timezone: local
//   - history_size: 200
type SchedulerConfig struct {
	// CheckEvery accepts a cron spec, a Go duration or an HH:MM interval.
	CheckEvery  string `json:"check_every,omitempty"`
	TickTimeout string `json:"tick_timeout,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	HistorySize int    `json:"history_size,omitempty" validate:"gte=0"`
}

// AlarmConfig tunes the evaluator.
//
// max_lateness "0s" (or omitted) keeps alarms due for the rest of the day.
type AlarmConfig struct {
	DedupTTL    string `json:"dedup_ttl,omitempty"`
	MaxLateness string `json:"max_lateness,omitempty"`
}

// StorageConfig selects the durable store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/classalarm.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=memory mem sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// CacheConfig selects the dedup/inbox backend. Multi-process deployments
// must use redis so every process shares the same markers.
type CacheConfig struct {
	Driver      string      `json:"driver" validate:"omitempty,oneof=memory mem redis"`
	Redis       RedisConfig `json:"redis,omitempty"`
	InboxTTL    string      `json:"inbox_ttl,omitempty"`
	InboxMaxLen int         `json:"inbox_max_len,omitempty" validate:"gte=0"`
}

type RedisConfig struct {
	Addr        string `json:"addr,omitempty"`
	Password    string `json:"password,omitempty"` // do not log
	DB          int    `json:"db,omitempty" validate:"gte=0,lte=15"`
	KeyPrefix   string `json:"key_prefix,omitempty"`
	DialTimeout string `json:"dial_timeout,omitempty"`
}

// APIConfig controls the HTTP surface. The API trusts identity headers set
// by the auth gateway in front of it, so bind it to a private address.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty" validate:"required_if=Enabled true"`

	// CheckRatePerSec limits POST /api/alarms/check. 0 means 1/s.
	CheckRatePerSec float64 `json:"check_rate_per_sec,omitempty" validate:"gte=0"`
	Burst           int     `json:"burst,omitempty" validate:"gte=0"`

	// CheckRoles restricts POST /api/alarms/check to these gateway roles.
	// Empty lets any authenticated caller trigger a check.
	CheckRoles []string `json:"check_roles,omitempty" validate:"dive,oneof=student cr admin"`
}

// SystemdConfig toggles sd_notify integration. Both are no-ops when the
// process does not run under systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}
