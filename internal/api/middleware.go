package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"classalarm/internal/alarm"
	logx "classalarm/pkg/logx"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	// RoleAdmin is accepted from the gateway for operator calls; it is not a
	// stored user role.
	RoleAdmin alarm.Role = "admin"

	ctxIdentity = "identity"
)

// Identity is the caller as asserted by the auth gateway.
type Identity struct {
	UserID int64
	Role   alarm.Role
}

func newRequestID() string { return uuid.NewString() }

func (s *Server) requestLogger() echo.MiddlewareFunc {
	log := s.log
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the status before we read it.
				c.Error(err)
			}
			req, res := c.Request(), c.Response()
			fields := []logx.Field{
				logx.String("id", res.Header().Get(echo.HeaderXRequestID)),
				logx.String("method", req.Method),
				logx.String("path", c.Path()),
				logx.Int("status", res.Status),
				logx.Duration("took", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, logx.Err(err))
			}
			switch {
			case res.Status >= 500:
				log.Error("http request", fields...)
			case res.Status >= 400:
				log.Debug("http request", fields...)
			default:
				log.Trace("http request", fields...)
			}
			return nil
		}
	}
}

// identity reads the gateway headers. A missing or malformed user id is 401.
func identity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
			id, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || id <= 0 {
				return fmt.Errorf("%w: missing identity", alarm.ErrPermissionDenied)
			}
			role := alarm.Role(strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderUserRole))))
			if role == "" {
				role = alarm.RoleStudent
			}
			c.Set(ctxIdentity, Identity{UserID: id, Role: role})
			return next(c)
		}
	}
}

func identityOf(c echo.Context) (Identity, bool) {
	id, ok := c.Get(ctxIdentity).(Identity)
	return id, ok
}

// requireRole rejects callers whose role is not listed with 403.
func requireRole(roles ...alarm.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			who, ok := identityOf(c)
			if !ok {
				return fmt.Errorf("%w: missing identity", alarm.ErrPermissionDenied)
			}
			for _, r := range roles {
				if who.Role == r {
					return next(c)
				}
			}
			return errForbidden
		}
	}
}

func (s *Server) limit(l *rate.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow() {
				return errTooManyRequests
			}
			return next(c)
		}
	}
}
