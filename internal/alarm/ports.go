package alarm

import (
	"context"
	"time"
)

// ScheduleStore is the read side of the durable class/preference store.
type ScheduleStore interface {
	ClassesOn(ctx context.Context, date string) ([]ClassSchedule, error)
	EnabledPreferencesFor(ctx context.Context, classID int64) ([]AlarmPreference, error)
	// ClassByID returns ErrNotFound for unknown ids.
	ClassByID(ctx context.Context, id int64) (ClassSchedule, error)
	// UserByID returns ErrNotFound for unknown ids.
	UserByID(ctx context.Context, id int64) (User, error)
}

// PreferenceStore mutates a user's own preferences. Both calls create the
// (user, class) row on first use.
type PreferenceStore interface {
	TogglePreference(ctx context.Context, userID, classID int64) (AlarmPreference, error)
	SetPreferenceLead(ctx context.Context, userID, classID int64, lead int) (AlarmPreference, error)
}

// AuditLog is the append-only record of sent notifications.
type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// DedupCache records "alarm already fired" markers with a TTL.
type DedupCache interface {
	Has(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
}

// Inbox is the per-user queue of undelivered payloads.
// Append must be atomic per user and must reset the inbox TTL.
type Inbox interface {
	Append(ctx context.Context, userID int64, p Payload) (Payload, error)
	Read(ctx context.Context, userID int64) ([]Payload, error)
	Clear(ctx context.Context, userID int64) error
}
