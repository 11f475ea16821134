package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"classalarm/internal/alarm"
	logx "classalarm/pkg/logx"
)

type messageResponse struct {
	Message string `json:"message"`
}

type notificationsResponse struct {
	Notifications []alarm.Payload `json:"notifications"`
}

type checkedAlarm struct {
	User  string `json:"user"`
	Class string `json:"class"`
	Time  int    `json:"time"`
}

type checkResponse struct {
	Message       string         `json:"message"`
	Notifications []checkedAlarm `json:"notifications"`
}

type timingRequest struct {
	// LeadMinutes defaults to the standard lead when omitted.
	LeadMinutes *int `json:"alarm_minutes_before" validate:"omitempty,lead_choice"`
}

func classID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "Not found")
	}
	return id, nil
}

func caller(c echo.Context) (Identity, error) {
	who, ok := identityOf(c)
	if !ok {
		return Identity{}, alarm.ErrPermissionDenied
	}
	return who, nil
}

func (s *Server) getNotifications(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	items, err := s.svc.GetNotifications(c.Request().Context(), who.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notificationsResponse{Notifications: items})
}

func (s *Server) clearNotifications(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	if err := s.svc.ClearNotifications(c.Request().Context(), who.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Notifications cleared successfully"})
}

func (s *Server) sendTestNotification(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := classID(c)
	if err != nil {
		return err
	}
	if _, err := s.svc.SendTest(c.Request().Context(), who.UserID, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Test notification sent successfully"})
}

func (s *Server) toggleAlarm(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := classID(c)
	if err != nil {
		return err
	}
	p, err := s.svc.ToggleAlarm(c.Request().Context(), who.UserID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) updateAlarmTiming(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := classID(c)
	if err != nil {
		return err
	}
	var req timingRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	lead := alarm.DefaultLeadMinutes
	if req.LeadMinutes != nil {
		lead = *req.LeadMinutes
	}
	p, err := s.svc.UpdateAlarmTiming(c.Request().Context(), who.UserID, id, lead)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) checkAlarms(c echo.Context) error {
	rep, err := s.svc.CheckNow(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]checkedAlarm, 0, rep.Count())
	for _, f := range rep.Fired {
		out = append(out, checkedAlarm{User: f.User, Class: f.Subject, Time: f.LeadMinutes})
	}
	return c.JSON(http.StatusOK, checkResponse{
		Message:       fmt.Sprintf("Sent %d alarm notifications", rep.Count()),
		Notifications: out,
	})
}

func (s *Server) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.health))
	for name, p := range s.health {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			s.log.Warn("health check failed", logx.String("dep", name), logx.Err(err))
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	return c.JSON(status, echo.Map{"status": state, "checks": checks})
}
