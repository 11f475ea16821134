package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"classalarm/internal/alarm"
	logx "classalarm/pkg/logx"
)

// AlarmService is the slice of alarm.Service the HTTP layer calls.
type AlarmService interface {
	CheckNow(ctx context.Context) (alarm.Report, error)
	SendTest(ctx context.Context, userID, classID int64) (alarm.Payload, error)
	GetNotifications(ctx context.Context, userID int64) ([]alarm.Payload, error)
	ClearNotifications(ctx context.Context, userID int64) error
	ToggleAlarm(ctx context.Context, userID, classID int64) (alarm.AlarmPreference, error)
	UpdateAlarmTiming(ctx context.Context, userID, classID int64, lead int) (alarm.AlarmPreference, error)
}

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr string
	// CheckRate limits POST /api/alarms/check across all callers.
	CheckRate  rate.Limit
	CheckBurst int
	// CheckRoles gates the check route by gateway role. Empty allows every
	// authenticated caller.
	CheckRoles []alarm.Role
	// ShutdownTimeout bounds graceful shutdown (default 5s).
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CheckRate <= 0 {
		c.CheckRate = 1
	}
	if c.CheckBurst <= 0 {
		c.CheckBurst = 1
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return c
}

type Server struct {
	cfg    Config
	echo   *echo.Echo
	log    logx.Logger
	svc    AlarmService
	health map[string]Pinger
	check  *rate.Limiter
}

// New builds the router. health maps a dependency name to its pinger.
func New(cfg Config, svc AlarmService, health map[string]Pinger, log logx.Logger) *Server {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:    cfg,
		echo:   echo.New(),
		log:    log,
		svc:    svc,
		health: health,
		check:  rate.NewLimiter(cfg.CheckRate, cfg.CheckBurst),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newValidator()
	e.HTTPErrorHandler = s.handleError

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: newRequestID}))
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	e.GET("/healthz", s.healthz)

	g := e.Group("/api", identity())
	g.GET("/notifications", s.getNotifications)
	g.POST("/notifications/clear", s.clearNotifications)
	g.POST("/classes/:id/test-notification", s.sendTestNotification)
	g.POST("/classes/:id/toggle-alarm", s.toggleAlarm)
	g.POST("/classes/:id/update-alarm-timing", s.updateAlarmTiming)
	var checkMW []echo.MiddlewareFunc
	if len(s.cfg.CheckRoles) > 0 {
		checkMW = append(checkMW, requireRole(s.cfg.CheckRoles...))
	}
	checkMW = append(checkMW, s.limit(s.check))
	g.POST("/alarms/check", s.checkAlarms, checkMW...)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.echo.Listener = ln
	s.log.Info("api listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.echo.Start("") }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(sctx); err != nil {
		s.log.Warn("api shutdown", logx.Err(err))
		return err
	}
	s.log.Info("api stopped")
	return nil
}
