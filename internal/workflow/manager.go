package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/notifications"
	"storyforge/internal/queue"
)

// Manager leases jobs from the queue and feeds them to the Orchestrator.
type Manager struct {
	cfg          *config.Config
	store        Queue
	orch         *Orchestrator
	retry        RetryPolicy
	logger       *slog.Logger
	notifier     notifications.Service
	heartbeat    *HeartbeatMonitor
	pollInterval time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastJob  *queue.Job
	scenes   map[string]string
	counters Counters
	// unsettled holds failures whose retry-or-fail outcome could not be persisted.
	unsettled map[string]error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notifier built from config.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithRetryPolicy replaces the policy built from config.
func WithRetryPolicy(p RetryPolicy) ManagerOption {
	return func(m *Manager) {
		m.retry = p
	}
}

// WithClock sets the time source used to schedule retries.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store Queue, orch *Orchestrator, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		orch:         orch,
		retry:        NewRetryPolicy(cfg),
		logger:       logging.NewComponentLogger(logger, "workflow"),
		notifier:     notifications.NewService(cfg),
		pollInterval: cfg.PollInterval(),
		now:          time.Now,
		scenes:       make(map[string]string),
		unsettled:    make(map[string]error),
	}
	m.heartbeat = NewHeartbeatMonitor(
		store,
		m.logger,
		time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
	)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) concurrency() int {
	if n := m.cfg.Workflow.Concurrency; n > 0 {
		return n
	}
	return 1
}
