package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"classalarm/internal/alarm"
	logx "classalarm/pkg/logx"
)

func newTestRedis(t *testing.T, cfg Config) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return newRedisWithClient(rdb, cfg, logx.Nop()), mr
}

func TestRedisDedupTTL(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, Config{})

	key := alarm.DedupKey(9, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	if err := r.Set(ctx, key, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists(defaultKeyPrefix + "alarm_sent_9_2025-03-10") {
		t.Fatal("expected prefixed marker key in redis")
	}
	if ok, err := r.Has(ctx, key); err != nil || !ok {
		t.Fatalf("Has = %v, %v; want true, nil", ok, err)
	}

	mr.FastForward(61 * time.Minute)
	if ok, _ := r.Has(ctx, key); ok {
		t.Fatal("marker should expire after TTL")
	}
}

func TestRedisInboxAppendReadClear(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, Config{InboxTTL: time.Hour})

	ts := time.Date(2025, 3, 10, 13, 40, 0, 0, time.UTC)
	p, err := r.Append(ctx, 4, alarm.Payload{Type: alarm.KindAlarm, Title: "t", Message: "m1", Timestamp: ts, ClassID: 11})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if p.ID != 1 {
		t.Fatalf("first id = %d, want 1", p.ID)
	}

	mr.FastForward(50 * time.Minute)
	if _, err := r.Append(ctx, 4, alarm.Payload{Type: alarm.KindTest, Message: "m2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	mr.FastForward(55 * time.Minute) // T+105m, alive only because the TTL was reset

	got, err := r.Read(ctx, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read = %d payloads, want 2", len(got))
	}
	if got[0].ID != 1 || got[0].ClassID != 11 || !got[0].Timestamp.Equal(ts) {
		t.Fatalf("first payload = %+v", got[0])
	}
	if got[1].ID != 2 || got[1].Type != alarm.KindTest {
		t.Fatalf("second payload = %+v", got[1])
	}

	if err := r.Clear(ctx, 4); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if mr.Exists(defaultKeyPrefix + alarm.InboxKey(4)) {
		t.Fatal("Clear should delete the inbox key")
	}
}

func TestRedisInboxMaxLen(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t, Config{InboxMaxLen: 2})

	var last alarm.Payload
	for _, msg := range []string{"a", "b", "c"} {
		p, err := r.Append(ctx, 1, alarm.Payload{Message: msg})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		last = p
	}
	if last.ID != 2 {
		t.Fatalf("id after trim = %d, want 2", last.ID)
	}
	got, _ := r.Read(ctx, 1)
	if len(got) != 2 || got[0].Message != "b" || got[1].Message != "c" {
		t.Fatalf("trimmed inbox = %+v", got)
	}
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, Config{})
	mr.Close()

	if _, err := r.Has(ctx, "x"); err == nil {
		t.Fatal("expected error from closed redis")
	}
	if _, err := r.Append(ctx, 1, alarm.Payload{}); err == nil {
		t.Fatal("expected append error from closed redis")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "memcached"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	b, err := Open(context.Background(), Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open default: %v", err)
	}
	if _, ok := b.(*Memory); !ok {
		t.Fatalf("default driver = %T, want *Memory", b)
	}
}
