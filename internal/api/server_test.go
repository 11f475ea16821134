package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"classalarm/internal/alarm"
	"classalarm/internal/cache"
	"classalarm/internal/storage"
	logx "classalarm/pkg/logx"
)

var testNow = time.Date(2025, 3, 10, 13, 40, 0, 0, time.UTC)

type env struct {
	srv   *Server
	store *storage.Memory
	cache *cache.Memory
}

func setup(t *testing.T, cfg Config) *env {
	t.Helper()
	st := storage.NewMemory()
	mem := cache.NewMemory(cache.Config{}, cache.WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { _ = mem.Close() })

	svc := alarm.NewService(alarm.EvaluatorConfig{Location: time.UTC}, alarm.Deps{
		Store: st, Preferences: st, Audit: st,
		Dedup: mem, Inbox: mem,
		Now: func() time.Time { return testNow },
	})
	srv := New(cfg, svc, map[string]Pinger{"storage": st, "cache": mem}, logx.Nop())
	return &env{srv: srv, store: st, cache: mem}
}

func (e *env) do(method, path, body string, user int64, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user > 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(user, 10))
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *env) class(t *testing.T, at string) alarm.ClassSchedule {
	t.Helper()
	c, err := e.store.CreateClass(context.Background(), alarm.ClassSchedule{
		Subject: alarm.SubjectSE221, Venue: alarm.VenueACBLH1, Date: "2025-03-10", Time: at,
	})
	require.NoError(t, err)
	return c
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRequiresIdentity(t *testing.T) {
	e := setup(t, Config{})
	for _, path := range []string{"/api/notifications", "/api/notifications/"} {
		rec := e.do(http.MethodGet, path, "", 0, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "Authentication required", decode(t, rec)["error"])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set(HeaderUserID, "abc")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestNotificationsFlow(t *testing.T) {
	e := setup(t, Config{})
	c := e.class(t, "14:00:00")

	rec := e.do(http.MethodGet, "/api/notifications", "", 7, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"notifications":[]}`, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/classes/"+strconv.FormatInt(c.ID, 10)+"/test-notification", "", 7, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Test notification sent successfully"}`, rec.Body.String())

	rec = e.do(http.MethodGet, "/api/notifications", "", 7, "")
	items := decode(t, rec)["notifications"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, "test", first["type"])
	assert.Equal(t, "ClassAlarm - Test Notification", first["title"])
	assert.EqualValues(t, c.ID, first["class_id"])

	rec = e.do(http.MethodPost, "/api/notifications/clear", "", 7, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Notifications cleared successfully"}`, rec.Body.String())

	rec = e.do(http.MethodGet, "/api/notifications", "", 7, "")
	assert.JSONEq(t, `{"notifications":[]}`, rec.Body.String())
}

func TestUnknownClassIs404(t *testing.T) {
	e := setup(t, Config{})
	for _, path := range []string{
		"/api/classes/999/test-notification",
		"/api/classes/999/toggle-alarm",
		"/api/classes/abc/toggle-alarm",
	} {
		rec := e.do(http.MethodPost, path, "", 1, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}
}

func TestToggleAndTiming(t *testing.T) {
	e := setup(t, Config{})
	c := e.class(t, "15:00:00")
	base := "/api/classes/" + strconv.FormatInt(c.ID, 10)

	rec := e.do(http.MethodPost, base+"/toggle-alarm", "", 3, "")
	require.Equal(t, http.StatusOK, rec.Code)
	pref := decode(t, rec)
	assert.Equal(t, true, pref["is_enabled"])
	assert.EqualValues(t, 20, pref["alarm_minutes_before"])
	assert.EqualValues(t, 3, pref["user"])

	rec = e.do(http.MethodPost, base+"/toggle-alarm", "", 3, "")
	assert.Equal(t, false, decode(t, rec)["is_enabled"])

	rec = e.do(http.MethodPost, base+"/update-alarm-timing", `{"alarm_minutes_before":60}`, 3, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 60, decode(t, rec)["alarm_minutes_before"])

	rec = e.do(http.MethodPost, base+"/update-alarm-timing", `{"alarm_minutes_before":45}`, 3, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "alarm_minutes_before")

	rec = e.do(http.MethodPost, base+"/update-alarm-timing", `{"alarm_minutes_before":"soon"}`, 3, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Omitted lead falls back to the default.
	rec = e.do(http.MethodPost, base+"/update-alarm-timing", ``, 4, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 20, decode(t, rec)["alarm_minutes_before"])
}

func TestCheckAlarms(t *testing.T) {
	e := setup(t, Config{CheckRate: rate.Inf})
	ctx := context.Background()
	u, err := e.store.CreateUser(ctx, alarm.User{Email: "student@example.com", Role: alarm.RoleStudent})
	require.NoError(t, err)
	c := e.class(t, "14:00:00")
	_, err = e.store.PutPreference(ctx, alarm.AlarmPreference{UserID: u.ID, ClassID: c.ID, Enabled: true, LeadMinutes: 20})
	require.NoError(t, err)

	// Any authenticated caller may trigger a check.
	rec := e.do(http.MethodPost, "/api/alarms/check", "", u.ID, "student")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Sent 1 alarm notifications","notifications":[{"user":"student@example.com","class":"SE221","time":20}]}`, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/alarms/check", "", u.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Sent 0 alarm notifications","notifications":[]}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/api/alarms/check", "", 0, "").Code)
}

func TestCheckAlarmsRoleGate(t *testing.T) {
	e := setup(t, Config{CheckRate: rate.Inf, CheckRoles: []alarm.Role{alarm.RoleCR, RoleAdmin}})

	rec := e.do(http.MethodPost, "/api/alarms/check", "", 1, "student")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Permission denied", decode(t, rec)["error"])

	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/alarms/check", "", 1, "cr").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/alarms/check", "", 1, "admin").Code)
}

func TestCheckAlarmsRateLimited(t *testing.T) {
	e := setup(t, Config{CheckRate: rate.Every(time.Hour), CheckBurst: 1})
	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/alarms/check", "", 1, "student").Code)
	assert.Equal(t, http.StatusTooManyRequests, e.do(http.MethodPost, "/api/alarms/check", "", 1, "student").Code)
}

func TestHealthz(t *testing.T) {
	e := setup(t, Config{})
	rec := e.do(http.MethodGet, "/healthz", "", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	_ = e.cache.Close()
	rec = e.do(http.MethodGet, "/healthz", "", 0, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["checks"].(map[string]any)["cache"])
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&alarm.ValidationError{Field: "date", Reason: "bad"}, http.StatusBadRequest},
		{alarm.ErrNotFound, http.StatusNotFound},
		{alarm.ErrPermissionDenied, http.StatusUnauthorized},
		{errForbidden, http.StatusForbidden},
		{alarm.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{alarm.ErrCacheUnavailable, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, msg := statusFor(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.NotContains(t, msg, "disk on fire")
	}
}
