package alarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"classalarm/internal/eventbus"
	logx "classalarm/pkg/logx"
)

const (
	EventFired = "alarm.fired"
	EventCheck = "alarm.check"
	EventTest  = "alarm.test"
)

// CheckEvent is published on the bus after every CheckNow.
type CheckEvent struct {
	At       time.Time     `json:"at"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Deps are the collaborators of Service. Now defaults to time.Now.
type Deps struct {
	Store       ScheduleStore
	Preferences PreferenceStore
	Audit       AuditLog
	Dedup       DedupCache
	Inbox       Inbox
	Bus         eventbus.Bus
	Log         logx.Logger
	Now         func() time.Time
}

// Service is what drivers and the API call into.
type Service struct {
	eval  *Evaluator
	store ScheduleStore
	prefs PreferenceStore
	inbox Inbox
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time

	// checkMu keeps in-process passes from overlapping (scheduled tick vs manual check).
	checkMu sync.Mutex
}

func NewService(cfg EvaluatorConfig, d Deps) *Service {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		eval:  NewEvaluator(cfg, d.Store, d.Audit, d.Dedup, d.Inbox, log),
		store: d.Store,
		prefs: d.Preferences,
		inbox: d.Inbox,
		bus:   d.Bus,
		log:   log,
		now:   now,
	}
}

// Apply forwards runtime config to the evaluator.
func (s *Service) Apply(cfg EvaluatorConfig) { s.eval.Apply(cfg) }

// CheckNow runs one evaluation pass at the service clock's current time.
func (s *Service) CheckNow(ctx context.Context) (Report, error) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	start := s.now()
	fired, err := s.eval.Evaluate(ctx, start)
	rep := Report{At: start, Fired: fired}

	for _, f := range fired {
		s.log.Info("alarm fired",
			logx.String("user", f.User),
			logx.String("class", f.Subject),
			logx.Int("lead_min", f.LeadMinutes),
			logx.Int64("pref", f.PreferenceID),
		)
		s.publish(EventFired, f)
	}

	ev := CheckEvent{At: start, Count: len(fired), Duration: s.now().Sub(start)}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(EventCheck, ev)

	return rep, err
}

// SendTest delivers one test notification for classID regardless of
// due time and dedup markers.
func (s *Service) SendTest(ctx context.Context, userID, classID int64) (Payload, error) {
	class, err := s.store.ClassByID(ctx, classID)
	if err != nil {
		return Payload{}, fmt.Errorf("class %d: %w", classID, err)
	}
	p, err := s.eval.deliver(ctx, s.now(), userID, class, KindTest, testMessage(class))
	if err != nil {
		return Payload{}, err
	}
	s.publish(EventTest, p)
	return p, nil
}

func (s *Service) GetNotifications(ctx context.Context, userID int64) ([]Payload, error) {
	items, err := s.inbox.Read(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: read inbox: %w", ErrCacheUnavailable, err)
	}
	if items == nil {
		items = []Payload{}
	}
	return items, nil
}

func (s *Service) ClearNotifications(ctx context.Context, userID int64) error {
	if err := s.inbox.Clear(ctx, userID); err != nil {
		return fmt.Errorf("%w: clear inbox: %w", ErrCacheUnavailable, err)
	}
	return nil
}

// ToggleAlarm creates the preference (enabled, default lead) on first use and
// flips it on every later call.
func (s *Service) ToggleAlarm(ctx context.Context, userID, classID int64) (AlarmPreference, error) {
	if _, err := s.store.ClassByID(ctx, classID); err != nil {
		return AlarmPreference{}, fmt.Errorf("class %d: %w", classID, err)
	}
	return s.prefs.TogglePreference(ctx, userID, classID)
}

// UpdateAlarmTiming sets the lead time, creating an enabled preference if needed.
func (s *Service) UpdateAlarmTiming(ctx context.Context, userID, classID int64, lead int) (AlarmPreference, error) {
	if !ValidLead(lead) {
		return AlarmPreference{}, &ValidationError{Field: "alarm_minutes_before", Reason: fmt.Sprintf("must be one of %v", LeadChoices)}
	}
	if _, err := s.store.ClassByID(ctx, classID); err != nil {
		return AlarmPreference{}, fmt.Errorf("class %d: %w", classID, err)
	}
	return s.prefs.SetPreferenceLead(ctx, userID, classID, lead)
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}
