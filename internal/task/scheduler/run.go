package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"classalarm/internal/eventbus"
	logx "classalarm/pkg/logx"
)

const (
	skipWarnThrottle   = 5 * time.Minute
	defaultHistorySize = 200
	slowRunThreshold   = 750 * time.Millisecond
)

// execute runs one trigger of d on the cron goroutine.
func (s *Service) execute(d scheduleDef) {
	if d.opt.Overlap == OverlapSkipIfRunning {
		if !d.state.tryAcquire() {
			s.reportSkip(d.name, s.historySize())
			return
		}
		defer d.state.release()
	}

	s.mu.Lock()
	base := s.base
	cfg := s.cfg
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	timeout := d.timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	ctx := base
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}

	start := s.now()
	err := s.runGuarded(ctx, d)
	dur := s.now().Sub(start)

	item := HistoryItem{Name: d.name, Started: start, Duration: dur}
	ev := TaskEvent{Name: d.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		s.log.Warn("task.failed", logx.String("task", d.name), logx.Duration("dur", dur), logx.Err(err))
		s.publish(EventTaskFailed, ev)
	} else {
		if dur >= slowRunThreshold {
			s.log.Info("task.completed", logx.String("task", d.name), logx.Duration("dur", dur))
		} else {
			s.log.Debug("task.completed", logx.String("task", d.name), logx.Duration("dur", dur))
		}
		s.publish(EventTaskFinished, ev)
	}
	s.record(item, cfg.HistorySize)
}

// runGuarded converts a job panic into an error so one bad run can't take
// down the cron goroutine.
func (s *Service) runGuarded(ctx context.Context, d scheduleDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task.panic", logx.String("task", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return d.job(ctx)
}

func (s *Service) reportSkip(name string, historySize int) {
	now := s.now()
	s.record(HistoryItem{Name: name, Started: now, Skipped: true}, historySize)
	s.publish(EventTaskSkipped, TaskEvent{Name: name, Started: now})

	s.skipMu.Lock()
	last := s.lastSkipWarn[name]
	throttled := !last.IsZero() && now.Sub(last) < skipWarnThrottle
	if !throttled {
		s.lastSkipWarn[name] = now
	}
	s.skipMu.Unlock()

	if throttled {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name))
		return
	}
	s.log.Warn("schedule trigger skipped; previous run still in flight", logx.String("schedule", name))
}

// historySize reads the configured bound. Callers resolve it before a run so
// recording never needs s.mu.
func (s *Service) historySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.HistorySize
}

func (s *Service) record(item HistoryItem, size int) {
	if size <= 0 {
		size = defaultHistorySize
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: ev})
}
