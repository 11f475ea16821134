package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const EnvPrefix = "CLASSALARM_"

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// ApplyEnv overrides addresses, paths and secrets from CLASSALARM_*
// variables. Unparsable numbers are ignored so Validate reports the file
// value instead.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	setStr := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	setStr("LOG_LEVEL", &cfg.Logging.Level)
	setStr("TIMEZONE", &cfg.Scheduler.Timezone)
	setStr("CHECK_EVERY", &cfg.Scheduler.CheckEvery)
	setStr("STORAGE_DRIVER", &cfg.Storage.Driver)
	setStr("STORAGE_PATH", &cfg.Storage.Path)
	setStr("CACHE_DRIVER", &cfg.Cache.Driver)
	setStr("REDIS_ADDR", &cfg.Cache.Redis.Addr)
	setStr("REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	setStr("REDIS_KEY_PREFIX", &cfg.Cache.Redis.KeyPrefix)
	setStr("API_ADDR", &cfg.API.Addr)

	if v, ok := get("REDIS_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Redis.DB = n
		}
	}
	if v, ok := get("API_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.API.Enabled = b
		}
	}
}
