package alarm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"classalarm/internal/alarm"
	"classalarm/internal/cache"
	"classalarm/internal/eventbus"
	"classalarm/internal/storage"
	logx "classalarm/pkg/logx"
)

func testLogger() logx.Logger { return logx.Nop() }

type serviceFixture struct {
	*fixture
	svc *alarm.Service
	bus eventbus.Bus
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := newFixture(t, alarm.EvaluatorConfig{})
	bus := eventbus.New()
	svc := alarm.NewService(alarm.EvaluatorConfig{Location: time.UTC}, alarm.Deps{
		Store:       f.store,
		Preferences: f.store,
		Audit:       f.store,
		Dedup:       f.cache,
		Inbox:       f.cache,
		Bus:         bus,
		Log:         testLogger(),
		Now:         f.clk.Now,
	})
	return &serviceFixture{fixture: f, svc: svc, bus: bus}
}

func TestCheckNowReportsAndPublishes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	events, unsub := f.bus.Subscribe(8, alarm.EventFired, alarm.EventCheck)
	defer unsub()

	u := f.user(t, "cr@example.com")
	c := f.class(t, alarm.SubjectSE221, "14:00:00")
	f.pref(t, u.ID, c.ID, 20, true)
	f.at(13, 40)

	rep, err := f.svc.CheckNow(ctx)
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if rep.Count() != 1 || rep.Summary() != "Sent 1 alarm notifications" {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Lines()[0] != "cr@example.com: SE221 (20m)" {
		t.Fatalf("line = %q", rep.Lines()[0])
	}

	first := <-events
	second := <-events
	if first.Type != alarm.EventFired || second.Type != alarm.EventCheck {
		t.Fatalf("events = %s, %s", first.Type, second.Type)
	}
	ev, ok := second.Data.(alarm.CheckEvent)
	if !ok || ev.Count != 1 || ev.Error != "" {
		t.Fatalf("check event = %+v", second.Data)
	}

	rep, _ = f.svc.CheckNow(ctx)
	if rep.Count() != 0 || rep.Summary() != "No alarm notifications to send" {
		t.Fatalf("second report = %+v", rep)
	}
}

func TestSendTestBypassesDueAndDedup(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	c, _ := f.store.CreateClass(ctx, alarm.ClassSchedule{Subject: alarm.SubjectCS221, Venue: alarm.VenueFSCELH2, Date: "2025-12-01", Time: "08:30:00"})
	f.at(7, 0)

	for i := 1; i <= 2; i++ {
		p, err := f.svc.SendTest(ctx, 9, c.ID)
		if err != nil {
			t.Fatalf("SendTest: %v", err)
		}
		if p.Type != alarm.KindTest || p.Title != "ClassAlarm - Test Notification" || p.ID != i {
			t.Fatalf("payload = %+v", p)
		}
	}

	items, err := f.svc.GetNotifications(ctx, 9)
	if err != nil || len(items) != 2 {
		t.Fatalf("GetNotifications = %d, %v; want 2", len(items), err)
	}
	want := "🔔 Test Notification!\nCS221 - This is a test notification.\n📍 FSCE-LH2 at 08:30:00"
	if items[0].Message != want {
		t.Fatalf("message = %q", items[0].Message)
	}
	audit, _ := f.store.RecentAudit(ctx, 9, 0)
	if len(audit) != 2 || audit[0].Kind != alarm.KindTest {
		t.Fatalf("audit = %+v", audit)
	}
}

func TestSendTestUnknownClass(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.SendTest(context.Background(), 1, 42); !errors.Is(err, alarm.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestNotificationsReadAndClear(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	items, err := f.svc.GetNotifications(ctx, 3)
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("empty inbox = %#v, %v; want empty non-nil slice", items, err)
	}

	c := f.class(t, alarm.SubjectEE201, "10:00:00")
	f.at(9, 0)
	_, _ = f.svc.SendTest(ctx, 3, c.ID)

	again, _ := f.svc.GetNotifications(ctx, 3)
	twice, _ := f.svc.GetNotifications(ctx, 3)
	if len(again) != 1 || len(twice) != 1 {
		t.Fatalf("reads not idempotent: %d then %d", len(again), len(twice))
	}
	if err := f.svc.ClearNotifications(ctx, 3); err != nil {
		t.Fatalf("ClearNotifications: %v", err)
	}
	if items, _ := f.svc.GetNotifications(ctx, 3); len(items) != 0 {
		t.Fatalf("after clear = %d", len(items))
	}
}

func TestToggleAndTiming(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	c := f.class(t, alarm.SubjectMath101, "11:00:00")

	p, err := f.svc.ToggleAlarm(ctx, 4, c.ID)
	if err != nil || !p.Enabled || p.LeadMinutes != alarm.DefaultLeadMinutes {
		t.Fatalf("first toggle = %+v, %v", p, err)
	}
	p, _ = f.svc.ToggleAlarm(ctx, 4, c.ID)
	if p.Enabled {
		t.Fatalf("second toggle should disable: %+v", p)
	}

	p, err = f.svc.UpdateAlarmTiming(ctx, 4, c.ID, 120)
	if err != nil || p.LeadMinutes != 120 {
		t.Fatalf("UpdateAlarmTiming = %+v, %v", p, err)
	}

	if _, err := f.svc.UpdateAlarmTiming(ctx, 4, c.ID, 45); !alarm.IsValidation(err) {
		t.Fatalf("lead 45 err = %v, want validation error", err)
	}
	if _, err := f.svc.ToggleAlarm(ctx, 4, 999); !errors.Is(err, alarm.ErrNotFound) {
		t.Fatalf("unknown class err = %v", err)
	}
}

func TestCheckNowStoreFailure(t *testing.T) {
	f := newFixture(t, alarm.EvaluatorConfig{})
	st := &failingStore{Memory: storage.NewMemory(), failClasses: true}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, alarm.EventCheck)
	defer unsub()

	svc := alarm.NewService(alarm.EvaluatorConfig{Location: time.UTC}, alarm.Deps{
		Store: st, Preferences: st, Audit: st,
		Dedup: f.cache, Inbox: f.cache,
		Bus: bus, Now: f.clk.Now,
	})
	f.at(10, 0)

	_, err := svc.CheckNow(context.Background())
	if !errors.Is(err, alarm.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	ev := (<-events).Data.(alarm.CheckEvent)
	if ev.Error == "" {
		t.Fatal("check event should carry the error")
	}
}

func TestInboxUnavailableSurfaces(t *testing.T) {
	f := newFixture(t, alarm.EvaluatorConfig{})
	mem := cache.NewMemory(cache.Config{})
	_ = mem.Close()
	svc := alarm.NewService(alarm.EvaluatorConfig{Location: time.UTC}, alarm.Deps{
		Store: f.store, Preferences: f.store, Audit: f.store,
		Dedup: mem, Inbox: mem,
	})
	if _, err := svc.GetNotifications(context.Background(), 1); !errors.Is(err, alarm.ErrCacheUnavailable) {
		t.Fatalf("err = %v, want ErrCacheUnavailable", err)
	}
}
