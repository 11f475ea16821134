package cache

import (
	"context"
	"errors"
	"time"

	"classalarm/internal/alarm"
)

var ErrClosed = errors.New("cache closed")

// Config configures the dedup/inbox cache.
//
// Driver values:
//   - "memory": process-local maps (single process only; duplicates possible across processes)
//   - "redis":  shared cache, required when more than one evaluator runs
type Config struct {
	Driver string

	Redis RedisConfig

	// InboxTTL is reset on every append (default 1h).
	InboxTTL time.Duration
	// InboxMaxLen keeps only the newest N payloads per user. 0 leaves the
	// inbox bounded by its TTL alone.
	InboxMaxLen int
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.InboxTTL <= 0 {
		c.InboxTTL = time.Hour
	}
	if c.InboxMaxLen < 0 {
		c.InboxMaxLen = 0
	}
	if c.Redis.DialTimeout <= 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	return c
}

// Backend is a dedup cache and an inbox sharing one connection.
type Backend interface {
	alarm.DedupCache
	alarm.Inbox
	Ping(ctx context.Context) error
	Close() error
}
