package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"classalarm/internal/alarm"
	logx "classalarm/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const prefColumns = `id, user_id, class_schedule_id, is_enabled, alarm_minutes_before`

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

type auditRow struct {
	ID      int64  `db:"id"`
	UserID  int64  `db:"user_id"`
	ClassID int64  `db:"class_schedule_id"`
	Kind    string `db:"notification_type"`
	Message string `db:"message"`
	SentAt  string `db:"sent_at"`
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) CreateUser(ctx context.Context, u alarm.User) (alarm.User, error) {
	if u.Role == "" {
		u.Role = alarm.RoleStudent
	}
	var (
		res sql.Result
		err error
	)
	if u.ID > 0 {
		res, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO users(id, email, role) VALUES(?,?,?)`, u.ID, u.Email, string(u.Role))
	} else {
		res, err = s.db.ExecContext(ctx, `INSERT INTO users(email, role) VALUES(?,?)`, u.Email, string(u.Role))
	}
	if err != nil {
		return alarm.User{}, fmt.Errorf("creating user: %w", err)
	}
	if u.ID == 0 {
		if u.ID, err = res.LastInsertId(); err != nil {
			return alarm.User{}, err
		}
	}
	return u, nil
}

func (s *sqliteStore) CreateClass(ctx context.Context, c alarm.ClassSchedule) (alarm.ClassSchedule, error) {
	if _, err := time.Parse(alarm.DateLayout, c.Date); err != nil {
		return alarm.ClassSchedule{}, &alarm.ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", c.Date)}
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO class_schedules (id, created_by, subject, venue, date, time, note)
		VALUES (NULLIF(:id, 0), :created_by, :subject, :venue, :date, :time, :note)`, c)
	if err != nil {
		return alarm.ClassSchedule{}, fmt.Errorf("creating class: %w", err)
	}
	if c.ID == 0 {
		if c.ID, err = res.LastInsertId(); err != nil {
			return alarm.ClassSchedule{}, err
		}
	}
	return c, nil
}

func (s *sqliteStore) PutPreference(ctx context.Context, p alarm.AlarmPreference) (alarm.AlarmPreference, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alarm_settings (user_id, class_schedule_id, is_enabled, alarm_minutes_before)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, class_schedule_id)
		DO UPDATE SET is_enabled = excluded.is_enabled, alarm_minutes_before = excluded.alarm_minutes_before`,
		p.UserID, p.ClassID, boolToInt(p.Enabled), p.LeadMinutes,
	)
	if err != nil {
		return alarm.AlarmPreference{}, fmt.Errorf("putting preference: %w", err)
	}
	return s.preference(ctx, s.db, p.UserID, p.ClassID)
}

func (s *sqliteStore) ClassesOn(ctx context.Context, date string) ([]alarm.ClassSchedule, error) {
	out := make([]alarm.ClassSchedule, 0)
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, created_by, subject, venue, date, time, note FROM class_schedules WHERE date = ? ORDER BY time, id`, date)
	if err != nil {
		return nil, fmt.Errorf("querying classes on %s: %w", date, err)
	}
	return out, nil
}

func (s *sqliteStore) EnabledPreferencesFor(ctx context.Context, classID int64) ([]alarm.AlarmPreference, error) {
	out := make([]alarm.AlarmPreference, 0)
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+prefColumns+` FROM alarm_settings WHERE class_schedule_id = ? AND is_enabled = 1 ORDER BY id`, classID)
	if err != nil {
		return nil, fmt.Errorf("querying preferences for class %d: %w", classID, err)
	}
	return out, nil
}

func (s *sqliteStore) ClassByID(ctx context.Context, id int64) (alarm.ClassSchedule, error) {
	var c alarm.ClassSchedule
	err := s.db.GetContext(ctx, &c,
		`SELECT id, created_by, subject, venue, date, time, note FROM class_schedules WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return alarm.ClassSchedule{}, alarm.ErrNotFound
	}
	if err != nil {
		return alarm.ClassSchedule{}, fmt.Errorf("getting class %d: %w", id, err)
	}
	return c, nil
}

func (s *sqliteStore) UserByID(ctx context.Context, id int64) (alarm.User, error) {
	var u alarm.User
	err := s.db.GetContext(ctx, &u, `SELECT id, email, role FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return alarm.User{}, alarm.ErrNotFound
	}
	if err != nil {
		return alarm.User{}, fmt.Errorf("getting user %d: %w", id, err)
	}
	return u, nil
}

// TogglePreference creates the row enabled with the default lead, or flips
// is_enabled on an existing row, in one transaction.
func (s *sqliteStore) TogglePreference(ctx context.Context, userID, classID int64) (alarm.AlarmPreference, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return alarm.AlarmPreference{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alarm_settings (user_id, class_schedule_id, is_enabled, alarm_minutes_before)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, class_schedule_id)
		DO UPDATE SET is_enabled = 1 - alarm_settings.is_enabled`,
		userID, classID, alarm.DefaultLeadMinutes,
	)
	if err != nil {
		return alarm.AlarmPreference{}, fmt.Errorf("toggling preference: %w", err)
	}
	p, err := s.preference(ctx, tx, userID, classID)
	if err != nil {
		return alarm.AlarmPreference{}, err
	}
	return p, tx.Commit()
}

func (s *sqliteStore) SetPreferenceLead(ctx context.Context, userID, classID int64, lead int) (alarm.AlarmPreference, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return alarm.AlarmPreference{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alarm_settings (user_id, class_schedule_id, is_enabled, alarm_minutes_before)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, class_schedule_id)
		DO UPDATE SET alarm_minutes_before = excluded.alarm_minutes_before`,
		userID, classID, lead,
	)
	if err != nil {
		return alarm.AlarmPreference{}, fmt.Errorf("setting preference lead: %w", err)
	}
	p, err := s.preference(ctx, tx, userID, classID)
	if err != nil {
		return alarm.AlarmPreference{}, err
	}
	return p, tx.Commit()
}

func (s *sqliteStore) preference(ctx context.Context, q sqlx.QueryerContext, userID, classID int64) (alarm.AlarmPreference, error) {
	var p alarm.AlarmPreference
	err := sqlx.GetContext(ctx, q, &p,
		`SELECT `+prefColumns+` FROM alarm_settings WHERE user_id = ? AND class_schedule_id = ?`, userID, classID)
	if errors.Is(err, sql.ErrNoRows) {
		return alarm.AlarmPreference{}, alarm.ErrNotFound
	}
	if err != nil {
		return alarm.AlarmPreference{}, fmt.Errorf("getting preference: %w", err)
	}
	return p, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e alarm.AuditEntry) error {
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	if e.Kind == "" {
		e.Kind = alarm.KindAlarm
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_logs(user_id, class_schedule_id, notification_type, message, sent_at)
		 VALUES(?,?,?,?,?)`,
		e.UserID, e.ClassID, string(e.Kind), e.Message, e.SentAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("appending audit: %w", err)
	}
	return nil
}

func (s *sqliteStore) RecentAudit(ctx context.Context, userID int64, limit int) ([]alarm.AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, class_schedule_id, notification_type, message, sent_at
		 FROM notification_logs WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit for user %d: %w", userID, err)
	}
	out := make([]alarm.AuditEntry, 0, len(rows))
	for _, r := range rows {
		at, err := time.Parse(time.RFC3339Nano, r.SentAt)
		if err != nil {
			s.log.Warn("audit row has bad sent_at", logx.Int64("id", r.ID), logx.Err(err))
		}
		out = append(out, alarm.AuditEntry{
			ID:      r.ID,
			UserID:  r.UserID,
			ClassID: r.ClassID,
			Kind:    alarm.Kind(r.Kind),
			Message: r.Message,
			SentAt:  at,
		})
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
