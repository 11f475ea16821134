package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"classalarm/internal/alarm"
)

// Memory is a process-local Backend. Every operation takes one mutex, so
// inbox appends are atomic within the process.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	cfg    Config
	closed bool

	markers map[string]time.Time // key -> expires at
	inboxes map[int64]*memInbox
}

type memInbox struct {
	items   []alarm.Payload
	expires time.Time
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now; tests use it to step over TTL boundaries.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(cfg Config, opts ...MemoryOption) *Memory {
	m := &Memory{
		now:     time.Now,
		cfg:     cfg.withDefaults(),
		markers: map[string]time.Time{},
		inboxes: map[int64]*memInbox{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	until, ok := m.markers[key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.markers, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Set(ctx context.Context, key string, ttl time.Duration) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.markers[key] = m.now().Add(ttl)
	return nil
}

func (m *Memory) Append(ctx context.Context, userID int64, p alarm.Payload) (alarm.Payload, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return alarm.Payload{}, ErrClosed
	}
	now := m.now()
	box := m.liveInboxLocked(userID, now)
	if box == nil {
		box = &memInbox{}
		m.inboxes[userID] = box
	}
	box.items = append(box.items, p)
	if n := m.cfg.InboxMaxLen; n > 0 && len(box.items) > n {
		box.items = slices.Clone(box.items[len(box.items)-n:])
	}
	box.expires = now.Add(m.cfg.InboxTTL)

	p.ID = len(box.items)
	return p, nil
}

func (m *Memory) Read(ctx context.Context, userID int64) ([]alarm.Payload, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	box := m.liveInboxLocked(userID, m.now())
	if box == nil {
		return []alarm.Payload{}, nil
	}
	out := make([]alarm.Payload, len(box.items))
	for i, p := range box.items {
		p.ID = i + 1
		out[i] = p
	}
	return out, nil
}

func (m *Memory) Clear(ctx context.Context, userID int64) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.inboxes, userID)
	return nil
}

// Prune drops expired markers and inboxes. Reads already ignore expired
// entries; this only bounds memory.
func (m *Memory) Prune(ctx context.Context) (int, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, until := range m.markers {
		if !now.Before(until) {
			delete(m.markers, k)
			n++
		}
	}
	for id, box := range m.inboxes {
		if !now.Before(box.expires) {
			delete(m.inboxes, id)
			n++
		}
	}
	return n, nil
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
	m.markers = map[string]time.Time{}
	m.inboxes = map[int64]*memInbox{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) liveInboxLocked(userID int64, now time.Time) *memInbox {
	box, ok := m.inboxes[userID]
	if !ok {
		return nil
	}
	if !now.Before(box.expires) {
		delete(m.inboxes, userID)
		return nil
	}
	return box
}
