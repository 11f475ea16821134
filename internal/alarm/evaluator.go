package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logx "classalarm/pkg/logx"
)

// EvaluatorConfig controls one evaluation pass.
type EvaluatorConfig struct {
	// Location is the fixed timezone class dates/times are read in. nil means time.Local.
	Location *time.Location
	// DedupTTL is the lifetime of a fired marker (default 1h).
	DedupTTL time.Duration
	// MaxLateness, when > 0, stops firing alarms whose instant is further in the
	// past than this. 0 keeps the unbounded "due for the rest of the day" rule.
	MaxLateness time.Duration
}

func (c EvaluatorConfig) withDefaults() EvaluatorConfig {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = DefaultDedupTTL
	}
	if c.MaxLateness < 0 {
		c.MaxLateness = 0
	}
	return c
}

// Evaluator decides which alarms are due at a given instant and fires them.
//
// It is safe for concurrent use, but callers should not overlap passes for the
// same logical scheduler; the dedup cache is the only guard across processes.
type Evaluator struct {
	store ScheduleStore
	audit AuditLog
	dedup DedupCache
	inbox Inbox
	log   logx.Logger

	mu  sync.RWMutex
	cfg EvaluatorConfig
}

func NewEvaluator(cfg EvaluatorConfig, store ScheduleStore, audit AuditLog, dedup DedupCache, inbox Inbox, log logx.Logger) *Evaluator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Evaluator{
		store: store,
		audit: audit,
		dedup: dedup,
		inbox: inbox,
		log:   log,
		cfg:   cfg.withDefaults(),
	}
}

// Apply swaps the pass configuration (timezone, TTL, lateness) at runtime.
func (e *Evaluator) Apply(cfg EvaluatorConfig) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

func (e *Evaluator) config() EvaluatorConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Evaluate runs one pass at now and returns the alarms it fired.
//
// A store failure aborts the pass with ErrStoreUnavailable; alarms fired
// before the failure are still returned. Every other failure is isolated to
// the record or alarm it concerns.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) ([]FiredAlarm, error) {
	cfg := e.config()
	now = now.In(cfg.Location)
	today := now.Format(DateLayout)

	classes, err := e.store.ClassesOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("%w: classes on %s: %w", ErrStoreUnavailable, today, err)
	}

	fired := make([]FiredAlarm, 0)
	users := map[int64]User{}

	for _, class := range classes {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		start, err := class.StartOn(now, cfg.Location)
		if err != nil {
			e.log.Warn("class skipped", logx.Int64("class", class.ID), logx.Err(err))
			continue
		}

		prefs, err := e.store.EnabledPreferencesFor(ctx, class.ID)
		if err != nil {
			return fired, fmt.Errorf("%w: preferences for class %d: %w", ErrStoreUnavailable, class.ID, err)
		}

		for _, pref := range prefs {
			if !pref.Enabled {
				continue
			}
			if err := pref.Validate(); err != nil {
				e.log.Warn("preference skipped", logx.Int64("class", class.ID), logx.Err(err))
				continue
			}
			at := start.Add(-pref.Lead())
			if now.Before(at) {
				continue
			}
			if cfg.MaxLateness > 0 && now.Sub(at) > cfg.MaxLateness {
				e.log.Debug("alarm past lateness cutoff",
					logx.Int64("pref", pref.ID),
					logx.Time("alarm_at", at),
					logx.Duration("cutoff", cfg.MaxLateness),
				)
				continue
			}

			fa, ok, err := e.fire(ctx, cfg, now, class, pref, users)
			if err != nil {
				if errors.Is(err, ErrStoreUnavailable) {
					return fired, err
				}
				e.log.Warn("alarm not fired", logx.Int64("pref", pref.ID), logx.Int64("class", class.ID), logx.Err(err))
				continue
			}
			if ok {
				fired = append(fired, fa)
			}
		}
	}
	return fired, nil
}

// fire runs the dedup check and the firing sequence for one due preference.
// ok is false when the marker says the alarm already fired today.
func (e *Evaluator) fire(ctx context.Context, cfg EvaluatorConfig, now time.Time, class ClassSchedule, pref AlarmPreference, users map[int64]User) (FiredAlarm, bool, error) {
	key := DedupKey(pref.ID, now)

	seen, err := e.dedup.Has(ctx, key)
	if err != nil {
		// Risk a duplicate rather than a missed alarm.
		e.log.Warn("dedup lookup failed; firing anyway", logx.String("key", key), logx.Err(fmt.Errorf("%w: %w", ErrCacheUnavailable, err)))
		seen = false
	}
	if seen {
		return FiredAlarm{}, false, nil
	}

	user, err := e.lookupUser(ctx, pref.UserID, users)
	if err != nil {
		return FiredAlarm{}, false, err
	}

	if _, err := e.deliver(ctx, now, user.ID, class, KindAlarm, alarmMessage(class, pref.LeadMinutes)); err != nil {
		return FiredAlarm{}, false, err
	}

	// Marker goes last: a crash before this line re-fires next tick instead of losing the alarm.
	if err := e.dedup.Set(ctx, key, cfg.DedupTTL); err != nil {
		e.log.Warn("dedup marker not written", logx.String("key", key), logx.Err(fmt.Errorf("%w: %w", ErrCacheUnavailable, err)))
	}

	return FiredAlarm{
		UserID:       user.ID,
		User:         userIdentifier(user),
		Subject:      class.Subject.Display(),
		LeadMinutes:  pref.LeadMinutes,
		ClassID:      class.ID,
		PreferenceID: pref.ID,
	}, true, nil
}

func (e *Evaluator) lookupUser(ctx context.Context, id int64, users map[int64]User) (User, error) {
	if u, ok := users[id]; ok {
		return u, nil
	}
	u, err := e.store.UserByID(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		// Identity lives outside the store; fall back to the bare id.
		u = User{ID: id}
	case err != nil:
		return User{}, fmt.Errorf("user %d: %w", id, err)
	}
	users[id] = u
	return u, nil
}

// deliver writes the audit entry and appends the inbox payload. The alarm and
// test paths share it so both produce the same payload shape.
func (e *Evaluator) deliver(ctx context.Context, now time.Time, userID int64, class ClassSchedule, kind Kind, msg string) (Payload, error) {
	if err := e.audit.AppendAudit(ctx, AuditEntry{
		UserID:  userID,
		ClassID: class.ID,
		Kind:    kind,
		Message: msg,
		SentAt:  now,
	}); err != nil {
		return Payload{}, fmt.Errorf("append audit: %w", err)
	}

	p, err := e.inbox.Append(ctx, userID, Payload{
		Type:      kind,
		Title:     titleFor(kind),
		Message:   msg,
		Timestamp: now,
		ClassID:   class.ID,
	})
	if err != nil {
		return Payload{}, fmt.Errorf("%w: inbox append for user %d: %w", ErrCacheUnavailable, userID, err)
	}
	return p, nil
}
