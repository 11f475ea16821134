package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"classalarm/internal/alarm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory(cfg Config) (*Memory, *fakeClock) {
	clk := &fakeClock{now: time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)}
	return NewMemory(cfg, WithClock(clk.Now)), clk
}

func TestMemoryDedupTTL(t *testing.T) {
	ctx := context.Background()
	m, clk := newTestMemory(Config{})

	if err := m.Set(ctx, "alarm_sent_1_2025-03-10", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clk.Advance(59 * time.Minute)
	if ok, _ := m.Has(ctx, "alarm_sent_1_2025-03-10"); !ok {
		t.Fatal("marker should be present before TTL")
	}
	clk.Advance(2 * time.Minute)
	if ok, _ := m.Has(ctx, "alarm_sent_1_2025-03-10"); ok {
		t.Fatal("marker should expire after TTL")
	}
}

func TestMemoryInboxTTLResetsOnAppend(t *testing.T) {
	ctx := context.Background()
	m, clk := newTestMemory(Config{InboxTTL: time.Hour})

	if _, err := m.Append(ctx, 7, alarm.Payload{Type: alarm.KindAlarm, Message: "first"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	clk.Advance(50 * time.Minute)
	p, err := m.Append(ctx, 7, alarm.Payload{Type: alarm.KindTest, Message: "second"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if p.ID != 2 {
		t.Fatalf("second payload id = %d, want 2", p.ID)
	}

	clk.Advance(5 * time.Minute) // T+55m: first write's TTL alone would have expired at T+60m, still alive anyway
	got, _ := m.Read(ctx, 7)
	if len(got) != 2 {
		t.Fatalf("Read at T+55m = %d payloads, want 2", len(got))
	}

	clk.Advance(54 * time.Minute) // T+109m
	if got, _ := m.Read(ctx, 7); len(got) != 2 {
		t.Fatalf("Read at T+109m = %d payloads, want 2", len(got))
	}

	clk.Advance(2 * time.Minute) // T+111m
	if got, _ := m.Read(ctx, 7); len(got) != 0 {
		t.Fatalf("Read at T+111m = %d payloads, want 0", len(got))
	}
}

func TestMemoryInboxReadDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(Config{})
	_, _ = m.Append(ctx, 1, alarm.Payload{Message: "a"})
	_, _ = m.Append(ctx, 1, alarm.Payload{Message: "b"})

	first, _ := m.Read(ctx, 1)
	second, _ := m.Read(ctx, 1)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("reads = %d/%d, want 2/2", len(first), len(second))
	}
	if first[0].ID != 1 || first[1].ID != 2 || first[1].Message != "b" {
		t.Fatalf("unexpected payloads: %+v", first)
	}

	if err := m.Clear(ctx, 1); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := m.Read(ctx, 1); len(got) != 0 {
		t.Fatalf("after Clear got %d payloads", len(got))
	}
}

func TestMemoryInboxMaxLen(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(Config{InboxMaxLen: 2})
	for _, msg := range []string{"a", "b", "c"} {
		if _, err := m.Append(ctx, 1, alarm.Payload{Message: msg}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, _ := m.Read(ctx, 1)
	if len(got) != 2 || got[0].Message != "b" || got[1].Message != "c" {
		t.Fatalf("trimmed inbox = %+v, want [b c]", got)
	}
}

func TestMemoryInboxUnboundedByDefault(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(Config{})
	const n = 150
	for i := 0; i < n; i++ {
		if _, err := m.Append(ctx, 1, alarm.Payload{Message: "x"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, _ := m.Read(ctx, 1)
	if len(got) != n || got[n-1].ID != n {
		t.Fatalf("inbox len = %d, want %d", len(got), n)
	}
}

func TestMemoryConcurrentAppendKeepsAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Config{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Append(ctx, 3, alarm.Payload{Message: "x"})
		}()
	}
	wg.Wait()
	if got, _ := m.Read(ctx, 3); len(got) != 50 {
		t.Fatalf("got %d payloads, want 50", len(got))
	}
}

func TestMemoryPruneAndClose(t *testing.T) {
	ctx := context.Background()
	m, clk := newTestMemory(Config{InboxTTL: time.Minute})
	_ = m.Set(ctx, "k", time.Minute)
	_, _ = m.Append(ctx, 1, alarm.Payload{})
	clk.Advance(2 * time.Minute)

	n, err := m.Prune(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Prune = %d, %v; want 2, nil", n, err)
	}

	_ = m.Close()
	if _, err := m.Has(ctx, "k"); err != ErrClosed {
		t.Fatalf("Has after Close err = %v, want ErrClosed", err)
	}
	if err := m.Ping(ctx); err != ErrClosed {
		t.Fatalf("Ping after Close err = %v, want ErrClosed", err)
	}
}
