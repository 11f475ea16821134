package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"classalarm/internal/alarm"
)

type prefKey struct {
	user, class int64
}

// Memory is a dependency-free Store. IDs are assigned from per-table counters.
type Memory struct {
	mu     sync.Mutex
	closed bool

	users   map[int64]alarm.User
	classes map[int64]alarm.ClassSchedule
	prefs   map[prefKey]alarm.AlarmPreference
	audit   []alarm.AuditEntry

	nextUser, nextClass, nextPref, nextAudit int64
}

func NewMemory() *Memory {
	return &Memory{
		users:   map[int64]alarm.User{},
		classes: map[int64]alarm.ClassSchedule{},
		prefs:   map[prefKey]alarm.AlarmPreference{},
	}
}

func (m *Memory) CreateUser(ctx context.Context, u alarm.User) (alarm.User, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return alarm.User{}, ErrClosed
	}
	if u.ID == 0 {
		m.nextUser++
		u.ID = m.nextUser
	} else if u.ID > m.nextUser {
		m.nextUser = u.ID
	}
	if u.Role == "" {
		u.Role = alarm.RoleStudent
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) CreateClass(ctx context.Context, c alarm.ClassSchedule) (alarm.ClassSchedule, error) {
	_ = ctx
	if _, err := time.Parse(alarm.DateLayout, c.Date); err != nil {
		return alarm.ClassSchedule{}, &alarm.ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", c.Date)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return alarm.ClassSchedule{}, ErrClosed
	}
	if c.ID == 0 {
		m.nextClass++
		c.ID = m.nextClass
	} else if c.ID > m.nextClass {
		m.nextClass = c.ID
	}
	m.classes[c.ID] = c
	return c, nil
}

func (m *Memory) PutPreference(ctx context.Context, p alarm.AlarmPreference) (alarm.AlarmPreference, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return alarm.AlarmPreference{}, ErrClosed
	}
	k := prefKey{p.UserID, p.ClassID}
	if old, ok := m.prefs[k]; ok {
		p.ID = old.ID
	} else if p.ID == 0 {
		m.nextPref++
		p.ID = m.nextPref
	} else if p.ID > m.nextPref {
		m.nextPref = p.ID
	}
	m.prefs[k] = p
	return p, nil
}

func (m *Memory) ClassesOn(ctx context.Context, date string) ([]alarm.ClassSchedule, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]alarm.ClassSchedule, 0)
	for _, c := range m.classes {
		if c.Date == date {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) EnabledPreferencesFor(ctx context.Context, classID int64) ([]alarm.AlarmPreference, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]alarm.AlarmPreference, 0)
	for _, p := range m.prefs {
		if p.ClassID == classID && p.Enabled {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ClassByID(ctx context.Context, id int64) (alarm.ClassSchedule, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return alarm.ClassSchedule{}, ErrClosed
	}
	c, ok := m.classes[id]
	if !ok {
		return alarm.ClassSchedule{}, alarm.ErrNotFound
	}
	return c, nil
}

func (m *Memory) UserByID(ctx context.Context, id int64) (alarm.User, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return alarm.User{}, ErrClosed
	}
	u, ok := m.users[id]
	if !ok {
		return alarm.User{}, alarm.ErrNotFound
	}
	return u, nil
}

func (m *Memory) TogglePreference(ctx context.Context, userID, classID int64) (alarm.AlarmPreference, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return alarm.AlarmPreference{}, ErrClosed
	}
	k := prefKey{userID, classID}
	p, ok := m.prefs[k]
	if !ok {
		m.nextPref++
		p = alarm.AlarmPreference{ID: m.nextPref, UserID: userID, ClassID: classID, Enabled: true, LeadMinutes: alarm.DefaultLeadMinutes}
	} else {
		p.Enabled = !p.Enabled
	}
	m.prefs[k] = p
	return p, nil
}

func (m *Memory) SetPreferenceLead(ctx context.Context, userID, classID int64, lead int) (alarm.AlarmPreference, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return alarm.AlarmPreference{}, ErrClosed
	}
	k := prefKey{userID, classID}
	p, ok := m.prefs[k]
	if !ok {
		m.nextPref++
		p = alarm.AlarmPreference{ID: m.nextPref, UserID: userID, ClassID: classID, Enabled: true}
	}
	p.LeadMinutes = lead
	m.prefs[k] = p
	return p, nil
}

func (m *Memory) AppendAudit(ctx context.Context, e alarm.AuditEntry) error {
	_ = ctx
	if strings.TrimSpace(string(e.Kind)) == "" {
		e.Kind = alarm.KindAlarm
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	m.nextAudit++
	e.ID = m.nextAudit
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) RecentAudit(ctx context.Context, userID int64, limit int) ([]alarm.AuditEntry, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]alarm.AuditEntry, 0)
	for i := len(m.audit) - 1; i >= 0; i-- {
		if m.audit[i].UserID != userID {
			continue
		}
		out = append(out, m.audit[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
