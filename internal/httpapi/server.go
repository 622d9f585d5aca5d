// Package httpapi exposes the instance API, rule authoring and the cron job
// entrypoints over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"routine-planner/internal/metrics"
	"routine-planner/internal/model"
	"routine-planner/internal/service"
)

type Options struct {
	Addr      string
	Instances *service.InstanceService
	Rules     *service.RuleService
	Plans     *service.PlanService
	Jobs      *service.JobRunner
	Metrics   *metrics.Metrics
	// JWTSecret enables bearer-token auth. When empty, the caller identity is
	// taken from the X-Actor-ID and X-Actor-Role headers set by a trusted proxy.
	JWTSecret string
	// CronSecret, when set, must be sent as X-Cron-Secret to trigger jobs.
	CronSecret     string
	DisableReqLogs bool
	Log            *slog.Logger
}

type Server struct {
	opts Options
	app  *echo.Echo
	log  *slog.Logger
}

func NewServer(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	s := &Server{
		opts: opts,
		app:  echo.New(),
		log:  opts.Log.With("component", "http"),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true

	v := newRequestValidator()
	s.app.Validator = v
	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.log, v)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.Recover())
	if !s.opts.DisableReqLogs {
		s.app.Use(requestLogger(s.log))
	}

	s.app.GET("/health", health)
	s.app.GET("/metrics", echo.WrapHandler(s.opts.Metrics.Handler()))

	v1 := s.app.Group("/v1")
	auth := authMiddleware(s.opts.JWTSecret)

	registerInstanceAPI(v1, auth, s.opts.Instances)
	registerRuleAPI(v1, auth, s.opts.Rules, s.opts.Plans)
	registerJobAPI(v1, cronMiddleware(s.opts.CronSecret), s.opts.Jobs)
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.opts.Addr)
	if err := s.app.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if actor, ok := c.Get(contextActorKey).(model.Actor); ok {
				attrs = append(attrs, slog.String("actor_id", actor.ID))
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("err", v.Error.Error()))
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}
