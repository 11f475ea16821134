package app

import (
	"context"

	"classalarm/internal/alarm"
	"classalarm/internal/eventbus"
	"classalarm/internal/task/scheduler"
	logx "classalarm/pkg/logx"
)

// logEvents mirrors bus traffic into the log: task failures at warn,
// everything else at debug.
func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128,
		alarm.EventCheck, alarm.EventTest,
		scheduler.EventTaskFailed, scheduler.EventTaskSkipped,
	)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.logEvent(e)
		}
	}
}

func (a *App) logEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case alarm.CheckEvent:
		fields := []logx.Field{logx.Int("count", d.Count), logx.Duration("took", d.Duration)}
		if d.Error != "" {
			a.log.Warn("alarm pass incomplete", append(fields, logx.String("err", d.Error))...)
			return
		}
		a.log.Trace("event", append(fields, logx.String("type", e.Type))...)
	case alarm.Payload:
		a.log.Debug("test notification sent", logx.Int64("class", d.ClassID))
	case scheduler.TaskEvent:
		if e.Type == scheduler.EventTaskFailed {
			a.log.Warn("task failed", logx.String("task", d.Name), logx.String("err", d.Error))
			return
		}
		a.log.Debug("event", logx.String("type", e.Type), logx.String("task", d.Name))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}
