package cache

import (
	"context"
	"errors"
	"strings"

	logx "classalarm/pkg/logx"
)

// Open initializes the configured backend.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory", "mem":
		return NewMemory(cfg), nil
	case "redis":
		return NewRedis(ctx, cfg, log)
	default:
		return nil, errors.New("unknown cache driver: " + driver)
	}
}
