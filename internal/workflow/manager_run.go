package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyforge/internal/logging"
	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/staging"
)

const staleWorkspaceAge = 24 * time.Hour

// Start begins background processing with one lane per unit of concurrency.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.orch == nil {
		m.mu.Unlock()
		return errors.New("workflow orchestrator not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	lanes := m.concurrency()
	m.wg.Add(lanes)
	m.mu.Unlock()

	cleaned := staging.CleanStale(runCtx, m.cfg.Paths.WorkDir, staleWorkspaceAge, nil, m.logger)
	for _, failure := range cleaned.Errors {
		m.logger.Debug("stale workspace not removed", logging.String("path", failure.Path), logging.Error(failure.Error))
	}
	m.notifyWorkerStarted(runCtx, lanes)

	for i := 0; i < lanes; i++ {
		logger := m.logger.With(logging.Int("lane", i))
		go m.runLane(runCtx, logger, i == 0)
	}
	return nil
}

// Stop terminates background processing and waits for in-flight jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLane(ctx context.Context, logger *slog.Logger, runReclaimer bool) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if runReclaimer {
			if err := m.heartbeat.ReclaimExpired(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Warn("reclaim expired leases failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}

		worked, err := m.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleNextJobError(ctx, logger, err)
			continue
		}
		if !worked {
			m.waitForJobOrShutdown(ctx)
		}
	}
}

// ProcessNext claims one runnable job and handles it to completion. It
// reports false when the queue had nothing runnable.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	job, err := m.claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	defer m.releaseScene(job.SceneID)
	m.setLastJob(job)

	jobCtx := services.WithRequestID(ctx, uuid.NewString())
	jobCtx = services.WithJobID(jobCtx, job.ID)
	jobCtx = services.WithSegmentID(jobCtx, job.SegmentID)
	jobCtx = services.WithSceneID(jobCtx, job.SceneID)
	jobCtx = services.WithAttempt(jobCtx, job.Attempt)
	logger := logging.WithContext(jobCtx, m.logger)

	hbCtx, stopHeartbeat := context.WithCancel(jobCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	outcome, handleErr := m.orch.Handle(jobCtx, job)
	stopHeartbeat()
	hbWG.Wait()

	if handleErr != nil && ctx.Err() != nil {
		// Shutdown interrupted the attempt; the job is redelivered on restart.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := m.store.ReleaseLease(releaseCtx, job.ID); err != nil {
			logger.Warn("release lease on shutdown failed", logging.Error(err))
		}
		return true, ctx.Err()
	}
	if handleErr != nil {
		m.handleFailure(jobCtx, logger, job, handleErr)
		m.setLastJob(job)
		return true, nil
	}

	m.setLastJob(job)
	if outcome.Skipped && outcome.Verdict == VerdictHandled {
		// Claimed jobs are never terminal, so this attempt ran here but its
		// outcome never reached the store.
		m.settleHandled(jobCtx, logger, job)
		m.setLastJob(job)
		return true, nil
	}
	if outcome.Skipped {
		if err := m.store.ReleaseLease(jobCtx, job.ID); err != nil {
			logger.Debug("release lease after skip failed", logging.Error(err))
		}
		return true, nil
	}
	m.countCompleted()
	m.notifyJobCompleted(jobCtx, job, outcome.Result)
	return true, nil
}

// claim leases the next job from a scene this process is not already
// working on.
func (m *Manager) claim(ctx context.Context) (*queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exclude := make([]string, 0, len(m.scenes))
	for sceneID := range m.scenes {
		exclude = append(exclude, sceneID)
	}
	job, err := m.store.ClaimNext(ctx, m.heartbeat.Lease(), exclude)
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	if job != nil {
		m.scenes[job.SceneID] = job.ID
	}
	return job, nil
}

func (m *Manager) releaseScene(sceneID string) {
	m.mu.Lock()
	delete(m.scenes, sceneID)
	m.mu.Unlock()
}

func (m *Manager) handleNextJobError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to fetch next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.pollInterval):
	}
}
