package storage

import (
	"context"
	"errors"
	"time"

	"classalarm/internal/alarm"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "memory": process-local maps, lost on restart (tests, demos)
//   - "sqlite": SQLite database file
//
// If Driver is empty, "memory" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is everything the alarm engine reads and writes durably, plus the
// seeding calls used by tests and the external CRUD layer.
//
// The store does not enforce domain rules (lead choices, time format);
// records are returned as stored and the evaluator skips bad ones.
type Store interface {
	alarm.ScheduleStore
	alarm.PreferenceStore
	alarm.AuditLog

	CreateUser(ctx context.Context, u alarm.User) (alarm.User, error)
	CreateClass(ctx context.Context, c alarm.ClassSchedule) (alarm.ClassSchedule, error)
	// PutPreference inserts or replaces the (user, class) row as given.
	PutPreference(ctx context.Context, p alarm.AlarmPreference) (alarm.AlarmPreference, error)
	// RecentAudit returns the newest entries for userID, newest first.
	RecentAudit(ctx context.Context, userID int64, limit int) ([]alarm.AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
