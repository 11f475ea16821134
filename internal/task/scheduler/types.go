package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"classalarm/internal/eventbus"
	logx "classalarm/pkg/logx"
)

// Config controls the scheduler (trigger) service.
type Config struct {
	Timezone       string        // IANA TZ, e.g. "Asia/Dhaka"; empty means Local
	DefaultTimeout time.Duration // used when a schedule has no timeout of its own
	HistorySize    int           // finished runs kept for Snapshot (default 200)
}

type OverlapPolicy int

const (
	// OverlapSkipIfRunning drops a trigger while the previous run is in flight.
	OverlapSkipIfRunning OverlapPolicy = iota
	OverlapAllow
)

// TaskOptions tune a single schedule.
type TaskOptions struct {
	Overlap OverlapPolicy
	// StartupSpread delays the first run of an interval schedule by a
	// per-name jitter so housekeeping jobs don't all fire at boot.
	StartupSpread bool
}

// RunState tracks whether a schedule is already in flight.
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

// Running reports whether a run is in flight.
func (s *RunState) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Skipped  bool
	Error    string
}

// TaskEvent is emitted on the event bus for run lifecycle events.
type TaskEvent struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

const (
	EventTaskFinished = "task.finished"
	EventTaskFailed   = "task.failed"
	EventTaskSkipped  = "task.skipped"
)

type Job func(ctx context.Context) error

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	opt           TaskOptions
	state         *RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus
	now func() time.Time

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// base is the parent of every run context; canceled by Stop.
	base   context.Context
	cancel context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem

	// Skip warning throttling: key is schedule name.
	skipMu       sync.Mutex
	lastSkipWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Running bool
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}
