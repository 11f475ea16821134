package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"classalarm/internal/alarm"
	logx "classalarm/pkg/logx"
)

var (
	errForbidden       = echo.NewHTTPError(http.StatusForbidden, "Permission denied")
	errTooManyRequests = echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
)

// statusFor maps an error to its HTTP status and the message safe to show.
// Internal error text never reaches the client.
func statusFor(err error) (int, any) {
	var (
		herr *echo.HTTPError
		verr *alarm.ValidationError
		vals validator.ValidationErrors
	)
	switch {
	case errors.As(err, &herr):
		if herr.Code >= http.StatusInternalServerError {
			return herr.Code, http.StatusText(herr.Code)
		}
		return herr.Code, herr.Message
	case errors.As(err, &vals):
		fields := make(map[string]string, len(vals))
		for _, fe := range vals {
			fields[fe.Field()] = "failed " + fe.Tag()
		}
		return http.StatusBadRequest, fields
	case errors.As(err, &verr):
		if verr.Field == "" {
			return http.StatusBadRequest, verr.Reason
		}
		return http.StatusBadRequest, verr.Field + ": " + verr.Reason
	case errors.Is(err, alarm.ErrPermissionDenied):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, alarm.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, alarm.ErrStoreUnavailable), errors.Is(err, alarm.ErrCacheUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", logx.String("path", c.Path()), logx.Int("status", code), logx.Err(err))
	}

	body := echo.Map{"error": msg}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, body)
	}
	if werr != nil {
		s.log.Warn("write error response", logx.Err(werr))
	}
}
