package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storyforge/internal/bible"
	"storyforge/internal/logging"
	"storyforge/internal/progress"
	"storyforge/internal/queue"
	"storyforge/internal/workflow"
)

// Store is the read side of the queue plus requeue. Both the SQLite and the
// PostgreSQL stores satisfy it.
type Store interface {
	GetJob(ctx context.Context, id string) (*queue.Job, error)
	ListJobs(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	GetSegment(ctx context.Context, id string) (*queue.Segment, error)
	GetScene(ctx context.Context, id string) (*queue.Scene, error)
	ListSegments(ctx context.Context, sceneID string) ([]*queue.Segment, error)
	GetSceneBible(ctx context.Context, sceneID string) (*bible.Bible, error)
	RequeueFailed(ctx context.Context, ids ...string) ([]*queue.Job, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// StatusFunc reports the running workflow's state.
type StatusFunc func(ctx context.Context) workflow.StatusSummary

// Pinger checks database reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server hosts the HTTP status API.
type Server struct {
	echo   *echo.Echo
	store  Store
	hub    *progress.Hub
	status StatusFunc
	pinger Pinger
	logger *slog.Logger
	now    func() time.Time

	// keepAlive spaces SSE comment frames while a job is idle.
	keepAlive time.Duration
	token     string
}

// Option customizes a Server.
type Option func(*Server)

// WithStatus wires the workflow status source.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) { s.status = fn }
}

// WithPinger wires the health probe.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithToken requires "Authorization: Bearer <token>" on /api routes. An
// empty token leaves them open.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithKeepAlive overrides the SSE keep-alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// New builds the router. hub may be nil, in which case the events endpoint
// only replays the job row.
func New(store Store, hub *progress.Hub, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		echo:      echo.New(),
		store:     store,
		hub:       hub,
		logger:    logging.NewComponentLogger(logger, "api"),
		now:       time.Now,
		keepAlive: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("api request",
				logging.String("method", v.Method),
				logging.String("uri", v.URI),
				logging.Int("status", v.Status),
				logging.Duration("latency", v.Latency),
				logging.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	e.GET("/healthz", s.health)
	g := e.Group("/api")
	if s.token != "" {
		g.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(s.token)) == 1, nil
			},
			ErrorHandler: func(error, echo.Context) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			},
		}))
	}
	g.GET("/status", s.workflowStatus)
	g.GET("/jobs", s.listJobs)
	g.GET("/jobs/:id", s.getJob)
	g.GET("/jobs/:id/events", s.jobEvents)
	g.POST("/jobs/:id/retry", s.retryJob)
	g.GET("/scenes/:id", s.getScene)
	g.GET("/scenes/:id/bible", s.getBible)
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on bind until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.echo.Listener = listener
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Warn("api request failed",
			logging.String("path", c.Path()),
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_error"),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
			logging.String(logging.FieldImpact, "status request returned an error"),
		)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Error: msg})
}
