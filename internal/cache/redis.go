package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"classalarm/internal/alarm"
	logx "classalarm/pkg/logx"
)

const defaultKeyPrefix = "classalarm:"

// Redis is the shared Backend. Dedup markers are plain keys with a TTL;
// inboxes are lists appended with RPUSH inside MULTI so concurrent writers
// never lose each other's payloads.
type Redis struct {
	rdb    *goredis.Client
	cfg    Config
	prefix string
	log    logx.Logger
}

// NewRedis connects and pings with the configured dial timeout.
func NewRedis(ctx context.Context, cfg Config, log logx.Logger) (*Redis, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, fmt.Errorf("cache.redis.addr is required for redis driver")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	r := newRedisWithClient(rdb, cfg, log)

	pctx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()
	if err := r.Ping(pctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	r.log.Info("redis connected", logx.String("addr", cfg.Redis.Addr), logx.Int("db", cfg.Redis.DB))
	return r, nil
}

func newRedisWithClient(rdb *goredis.Client, cfg Config, log logx.Logger) *Redis {
	if log.IsZero() {
		log = logx.Nop()
	}
	prefix := cfg.Redis.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{rdb: rdb, cfg: cfg.withDefaults(), prefix: prefix, log: log}
}

func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Set(ctx context.Context, key string, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.prefix+key, "1", ttl).Err()
}

// Append pushes p and resets the list TTL atomically. The returned ID is the
// payload's position after the push (and after trimming, if enabled).
func (r *Redis) Append(ctx context.Context, userID int64, p alarm.Payload) (alarm.Payload, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return alarm.Payload{}, fmt.Errorf("encode payload: %w", err)
	}
	key := r.prefix + alarm.InboxKey(userID)
	maxLen := r.cfg.InboxMaxLen

	var push *goredis.IntCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		push = pipe.RPush(ctx, key, b)
		if maxLen > 0 {
			pipe.LTrim(ctx, key, int64(-maxLen), -1)
		}
		pipe.Expire(ctx, key, r.cfg.InboxTTL)
		return nil
	})
	if err != nil {
		return alarm.Payload{}, err
	}
	n := int(push.Val())
	if maxLen > 0 && n > maxLen {
		n = maxLen
	}
	p.ID = n
	return p, nil
}

func (r *Redis) Read(ctx context.Context, userID int64) ([]alarm.Payload, error) {
	raw, err := r.rdb.LRange(ctx, r.prefix+alarm.InboxKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]alarm.Payload, 0, len(raw))
	for _, s := range raw {
		var p alarm.Payload
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			r.log.Warn("inbox item skipped", logx.Int64("user", userID), logx.Err(err))
			continue
		}
		p.ID = len(out) + 1
		out = append(out, p)
	}
	return out, nil
}

func (r *Redis) Clear(ctx context.Context, userID int64) error {
	return r.rdb.Del(ctx, r.prefix+alarm.InboxKey(userID)).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
