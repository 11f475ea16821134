package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"classalarm/internal/alarm"
	logx "classalarm/pkg/logx"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alarm.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	mem, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	t.Cleanup(func() {
		_ = sq.Close()
		_ = mem.Close()
	})
	return map[string]Store{"sqlite": sq, "memory": mem}
}

func TestClassesAndPreferences(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, err := st.CreateUser(ctx, alarm.User{Email: "a@example.com"})
			if err != nil {
				t.Fatalf("CreateUser: %v", err)
			}
			if u.ID == 0 || u.Role != alarm.RoleStudent {
				t.Fatalf("user = %+v", u)
			}

			late, _ := st.CreateClass(ctx, alarm.ClassSchedule{Subject: alarm.SubjectCS221, Venue: alarm.VenueACBLH2, Date: "2025-03-10", Time: "16:00:00"})
			early, _ := st.CreateClass(ctx, alarm.ClassSchedule{Subject: alarm.SubjectSE221, Venue: alarm.VenueACBLH1, Date: "2025-03-10", Time: "14:00:00"})
			if _, err := st.CreateClass(ctx, alarm.ClassSchedule{Subject: alarm.SubjectEE201, Venue: alarm.VenueFSCELH1, Date: "2025-03-11", Time: "09:00"}); err != nil {
				t.Fatalf("CreateClass: %v", err)
			}
			if _, err := st.CreateClass(ctx, alarm.ClassSchedule{Date: "10/03/2025"}); !alarm.IsValidation(err) {
				t.Fatalf("bad date err = %v, want validation error", err)
			}

			classes, err := st.ClassesOn(ctx, "2025-03-10")
			if err != nil {
				t.Fatalf("ClassesOn: %v", err)
			}
			if len(classes) != 2 || classes[0].ID != early.ID || classes[1].ID != late.ID {
				t.Fatalf("classes = %+v, want [%d %d]", classes, early.ID, late.ID)
			}
			if classes[0].Subject != alarm.SubjectSE221 || classes[0].Venue != alarm.VenueACBLH1 {
				t.Fatalf("round trip lost fields: %+v", classes[0])
			}

			if _, err := st.PutPreference(ctx, alarm.AlarmPreference{UserID: u.ID, ClassID: early.ID, Enabled: true, LeadMinutes: 30}); err != nil {
				t.Fatalf("PutPreference: %v", err)
			}
			if _, err := st.PutPreference(ctx, alarm.AlarmPreference{UserID: u.ID + 1, ClassID: early.ID, Enabled: false, LeadMinutes: 10}); err != nil {
				t.Fatalf("PutPreference: %v", err)
			}
			prefs, err := st.EnabledPreferencesFor(ctx, early.ID)
			if err != nil {
				t.Fatalf("EnabledPreferencesFor: %v", err)
			}
			if len(prefs) != 1 || prefs[0].UserID != u.ID || prefs[0].LeadMinutes != 30 || !prefs[0].Enabled {
				t.Fatalf("prefs = %+v", prefs)
			}

			if _, err := st.ClassByID(ctx, 999); !errors.Is(err, alarm.ErrNotFound) {
				t.Fatalf("ClassByID unknown err = %v", err)
			}
			if _, err := st.UserByID(ctx, 999); !errors.Is(err, alarm.ErrNotFound) {
				t.Fatalf("UserByID unknown err = %v", err)
			}
			got, err := st.UserByID(ctx, u.ID)
			if err != nil || got.Email != "a@example.com" {
				t.Fatalf("UserByID = %+v, %v", got, err)
			}
		})
	}
}

func TestTogglePreference(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, _ := st.CreateClass(ctx, alarm.ClassSchedule{Subject: alarm.SubjectMath101, Venue: alarm.VenueACBLH3, Date: "2025-03-10", Time: "10:00:00"})

			p, err := st.TogglePreference(ctx, 5, c.ID)
			if err != nil {
				t.Fatalf("TogglePreference: %v", err)
			}
			if !p.Enabled || p.LeadMinutes != alarm.DefaultLeadMinutes || p.ID == 0 {
				t.Fatalf("first toggle = %+v, want enabled with default lead", p)
			}
			id := p.ID

			p, _ = st.TogglePreference(ctx, 5, c.ID)
			if p.Enabled || p.ID != id {
				t.Fatalf("second toggle = %+v, want disabled, same id", p)
			}
			p, _ = st.TogglePreference(ctx, 5, c.ID)
			if !p.Enabled || p.ID != id {
				t.Fatalf("third toggle = %+v", p)
			}

			p, err = st.SetPreferenceLead(ctx, 5, c.ID, 60)
			if err != nil || p.LeadMinutes != 60 || !p.Enabled || p.ID != id {
				t.Fatalf("SetPreferenceLead = %+v, %v", p, err)
			}

			p, err = st.SetPreferenceLead(ctx, 6, c.ID, 15)
			if err != nil || p.LeadMinutes != 15 || !p.Enabled {
				t.Fatalf("SetPreferenceLead on new row = %+v, %v", p, err)
			}
		})
	}
}

func TestAuditAppendAndRecent(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2025, 3, 10, 13, 40, 0, 0, time.UTC)
			for i, kind := range []alarm.Kind{alarm.KindAlarm, alarm.KindTest, alarm.KindAlarm} {
				err := st.AppendAudit(ctx, alarm.AuditEntry{UserID: 1, ClassID: int64(i + 1), Kind: kind, Message: "m", SentAt: at.Add(time.Duration(i) * time.Minute)})
				if err != nil {
					t.Fatalf("AppendAudit: %v", err)
				}
			}
			_ = st.AppendAudit(ctx, alarm.AuditEntry{UserID: 2, ClassID: 1, Kind: alarm.KindAlarm, Message: "other", SentAt: at})

			got, err := st.RecentAudit(ctx, 1, 2)
			if err != nil {
				t.Fatalf("RecentAudit: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("RecentAudit len = %d, want 2", len(got))
			}
			if got[0].ClassID != 3 || got[1].ClassID != 2 || got[1].Kind != alarm.KindTest {
				t.Fatalf("RecentAudit order = %+v", got)
			}
			if !got[0].SentAt.Equal(at.Add(2 * time.Minute)) {
				t.Fatalf("sent_at = %v", got[0].SentAt)
			}

			all, _ := st.RecentAudit(ctx, 1, 0)
			if len(all) != 3 {
				t.Fatalf("unlimited RecentAudit len = %d, want 3", len(all))
			}
		})
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "alarm.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c, _ := st.CreateClass(ctx, alarm.ClassSchedule{Subject: alarm.SubjectIS301, Venue: alarm.VenueACBLH7, Date: "2025-03-10", Time: "08:00:00"})
	_ = st.Close()

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, err := st.ClassByID(ctx, c.ID)
	if err != nil || got.Subject != alarm.SubjectIS301 {
		t.Fatalf("ClassByID after reopen = %+v, %v", got, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error for sqlite without path")
	}
}
