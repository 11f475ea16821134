package systemd

import (
	"context"
	"testing"
	"time"

	logx "classalarm/pkg/logx"
)

func TestNotifierWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	n := NewNotifier(true, logx.Nop())
	if n.Ready() || n.Status("checking") || n.Stopping() {
		t.Fatal("nothing should be sent without NOTIFY_SOCKET")
	}
	if d := WatchdogInterval(); d != 0 {
		t.Fatalf("watchdog interval = %v, want 0", d)
	}

	var nilN *Notifier
	if nilN.Ready() {
		t.Fatal("nil notifier must be a no-op")
	}
}

func TestRunWatchdogReturnsOnCancel(t *testing.T) {
	n := NewNotifier(true, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	calls := 0
	go func() {
		n.RunWatchdog(ctx, 5*time.Millisecond, func(context.Context) error { calls++; return nil })
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunWatchdog did not return")
	}
	if calls == 0 {
		t.Fatal("health check never ran")
	}
}
