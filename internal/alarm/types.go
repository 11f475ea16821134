package alarm

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// DateLayout is how class dates are stored and how dedup keys carry the trigger date.
	DateLayout = "2006-01-02"
	// TimeLayout is the canonical wall-clock format of a class start time.
	TimeLayout = "15:04:05"

	// DefaultLeadMinutes is the lead time of a lazily created preference.
	DefaultLeadMinutes = 20
	// DefaultDedupTTL bounds how long a fired marker suppresses a re-fire.
	DefaultDedupTTL = time.Hour
)

// LeadChoices are the only lead times a preference may carry.
var LeadChoices = []int{5, 10, 15, 20, 30, 60, 120, 180}

// ValidLead reports whether n is one of LeadChoices.
func ValidLead(n int) bool { return slices.Contains(LeadChoices, n) }

type Subject string

const (
	SubjectSE221   Subject = "se221"
	SubjectCS221   Subject = "cs221"
	SubjectEE201   Subject = "ee201"
	SubjectMath101 Subject = "math101"
	SubjectPHY201  Subject = "phy201"
	SubjectIS301   Subject = "is301"
)

var subjects = []Subject{SubjectSE221, SubjectCS221, SubjectEE201, SubjectMath101, SubjectPHY201, SubjectIS301}

func (s Subject) Valid() bool { return slices.Contains(subjects, s) }

// Display returns the human label (e.g. "SE221"). Unknown codes are shown as-is.
func (s Subject) Display() string { return strings.ToUpper(string(s)) }

type Venue string

const (
	VenueACBLH1  Venue = "acb-lh1"
	VenueACBLH2  Venue = "acb-lh2"
	VenueACBLH3  Venue = "acb-lh3"
	VenueACBLH4  Venue = "acb-lh4"
	VenueACBLH5  Venue = "acb-lh5"
	VenueACBLH6  Venue = "acb-lh6"
	VenueACBLH7  Venue = "acb-lh7"
	VenueFSCELH1 Venue = "fsce-lh1"
	VenueFSCELH2 Venue = "fsce-lh2"
)

var venues = []Venue{
	VenueACBLH1, VenueACBLH2, VenueACBLH3, VenueACBLH4, VenueACBLH5, VenueACBLH6, VenueACBLH7,
	VenueFSCELH1, VenueFSCELH2,
}

func (v Venue) Valid() bool     { return slices.Contains(venues, v) }
func (v Venue) Display() string { return strings.ToUpper(string(v)) }

type Role string

const (
	RoleStudent Role = "student"
	RoleCR      Role = "cr"
)

func (r Role) Valid() bool { return r == RoleStudent || r == RoleCR }

// User is the slice of the external identity the engine needs.
type User struct {
	ID    int64  `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Role  Role   `db:"role" json:"role"`
}

// ClassSchedule is one class occurrence. Date and Time carry no timezone;
// they are read in the engine's configured location.
type ClassSchedule struct {
	ID        int64   `db:"id" json:"id"`
	CreatedBy int64   `db:"created_by" json:"created_by"`
	Subject   Subject `db:"subject" json:"subject"`
	Venue     Venue   `db:"venue" json:"venue"`
	Date      string  `db:"date" json:"date"`
	Time      string  `db:"time" json:"time"`
	Note      string  `db:"note" json:"note,omitempty"`
}

// ClockTime parses Time, accepting both HH:MM:SS and HH:MM.
func (c ClassSchedule) ClockTime() (hour, min, sec int, err error) {
	raw := strings.TrimSpace(c.Time)
	for _, layout := range []string{TimeLayout, "15:04"} {
		t, perr := time.Parse(layout, raw)
		if perr == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, &ValidationError{Field: "time", Reason: fmt.Sprintf("class %d: unparseable time %q", c.ID, c.Time)}
}

// StartOn combines the class wall-clock time with day in loc.
func (c ClassSchedule) StartOn(day time.Time, loc *time.Location) (time.Time, error) {
	h, m, s, err := c.ClockTime()
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := day.In(loc).Date()
	return time.Date(y, mo, d, h, m, s, 0, loc), nil
}

// DisplayTime renders the start time the way notification bodies show it.
func (c ClassSchedule) DisplayTime() string {
	h, m, s, err := c.ClockTime()
	if err != nil {
		return c.Time
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// AlarmPreference is a user's opt-in and lead time for one class.
type AlarmPreference struct {
	ID          int64 `db:"id" json:"id"`
	UserID      int64 `db:"user_id" json:"user"`
	ClassID     int64 `db:"class_schedule_id" json:"class_schedule"`
	Enabled     bool  `db:"is_enabled" json:"is_enabled"`
	LeadMinutes int   `db:"alarm_minutes_before" json:"alarm_minutes_before"`
}

func (p AlarmPreference) Validate() error {
	if p.ID <= 0 {
		return &ValidationError{Field: "id", Reason: "preference id must be positive"}
	}
	if !ValidLead(p.LeadMinutes) {
		return &ValidationError{Field: "alarm_minutes_before", Reason: fmt.Sprintf("preference %d: lead %d not in %v", p.ID, p.LeadMinutes, LeadChoices)}
	}
	return nil
}

// Lead returns the lead time as a duration.
func (p AlarmPreference) Lead() time.Duration { return time.Duration(p.LeadMinutes) * time.Minute }

type Kind string

const (
	KindAlarm Kind = "alarm"
	KindTest  Kind = "test"
)

// Payload is one inbox item awaiting client retrieval.
// ID is the 1-based position within the user's inbox at read time.
type Payload struct {
	ID        int       `json:"id"`
	Type      Kind      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	ClassID   int64     `json:"class_id"`
}

// AuditEntry is a durable record of a notification that was actually sent.
type AuditEntry struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"user"`
	ClassID int64     `json:"class_schedule"`
	Kind    Kind      `json:"notification_type"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// FiredAlarm describes one alarm produced by an evaluation pass.
type FiredAlarm struct {
	UserID       int64  `json:"-"`
	User         string `json:"user"`
	Subject      string `json:"class"`
	LeadMinutes  int    `json:"time"`
	ClassID      int64  `json:"class_id"`
	PreferenceID int64  `json:"-"`
}

// Line renders the console/report form "<user>: <subject> (<lead>m)".
func (f FiredAlarm) Line() string {
	return fmt.Sprintf("%s: %s (%dm)", f.User, f.Subject, f.LeadMinutes)
}

// Report is the caller-facing result of CheckNow.
type Report struct {
	At    time.Time    `json:"at"`
	Fired []FiredAlarm `json:"notifications"`
}

func (r Report) Count() int { return len(r.Fired) }

func (r Report) Summary() string {
	if len(r.Fired) == 0 {
		return "No alarm notifications to send"
	}
	return fmt.Sprintf("Sent %d alarm notifications", len(r.Fired))
}

func (r Report) Lines() []string {
	out := make([]string, 0, len(r.Fired))
	for _, f := range r.Fired {
		out = append(out, f.Line())
	}
	return out
}

// DedupKey is the marker key for a preference firing on a trigger date.
func DedupKey(preferenceID int64, day time.Time) string {
	return fmt.Sprintf("alarm_sent_%d_%s", preferenceID, day.Format(DateLayout))
}

// InboxKey is the cache key holding a user's pending payloads.
func InboxKey(userID int64) string { return fmt.Sprintf("notification_%d", userID) }

func userIdentifier(u User) string {
	if strings.TrimSpace(u.Email) != "" {
		return u.Email
	}
	return fmt.Sprintf("user#%d", u.ID)
}
