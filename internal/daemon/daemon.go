package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"storyforge/internal/api"
	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/progress"
	"storyforge/internal/workflow"
)

// Store is what the daemon needs from persistence.
type Store interface {
	workflow.Queue
	api.Store
	Close() error
}

// Daemon coordinates the workflow manager and status server and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    Store
	workflow *workflow.Manager
	hub      *progress.Hub

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	LockFilePath string
	APIBind      string
}

// New constructs a daemon. hub may be nil when no status server is wanted.
func New(cfg *config.Config, store Store, logger *slog.Logger, wf *workflow.Manager, hub *progress.Hub) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		hub:      hub,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the worker lock, launches the workflow manager and, when a
// bind address is configured, the status server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another storyforge worker holds %s", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	if bind := strings.TrimSpace(d.cfg.API.Bind); bind != "" {
		opts := []api.Option{api.WithStatus(d.workflow.Status), api.WithToken(d.cfg.API.Token)}
		if pinger, ok := d.store.(api.Pinger); ok {
			opts = append(opts, api.WithPinger(pinger))
		}
		srv := api.New(d.store, d.hub, d.logger, opts...)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := srv.Serve(runCtx, bind); err != nil {
				logging.ErrorWithContext(d.logger, "api server stopped", "api_server_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check api.bind is free"),
					logging.String(logging.FieldImpact, "status endpoints unavailable; the worker keeps running"),
				)
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("storyforge worker started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the worker lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release worker lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("storyforge worker stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		LockFilePath: d.lockPath,
		APIBind:      d.cfg.API.Bind,
	}
}
