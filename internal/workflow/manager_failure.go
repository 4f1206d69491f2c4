package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"storyforge/internal/logging"
	"storyforge/internal/progress"
	"storyforge/internal/queue"
	"storyforge/internal/services"
)

// handleFailure applies the retry policy to a failed attempt. A retry keeps
// the job PROCESSING and holds it back for the backoff delay; otherwise the
// job and its segment become FAILED.
func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, job *queue.Job, cause error) {
	m.setLastError(cause)
	details := services.Details(cause)

	if m.retry.ShouldRetry(job.Attempt, job.MaxAttempts, cause) {
		delay := m.retry.BackoffDelay(job.Attempt)
		at := m.now().Add(delay).UTC()
		if err := m.store.ScheduleRetry(ctx, job.ID, job.Attempt+1, at, cause.Error()); err != nil {
			m.rememberUnsettled(job.ID, cause)
			logging.ErrorWithContext(logger, "schedule retry failed", "retry_schedule_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the lease will expire and the job will be redelivered"),
			)
			return
		}
		m.forgetUnsettled(job.ID)
		m.countRetried()
		logging.WarnWithContext(logger, "job attempt failed; retry scheduled", "job_retry_scheduled",
			logging.Error(cause),
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.Int("next_attempt", job.Attempt+1),
			logging.Int("max_attempts", job.MaxAttempts),
			logging.Duration("backoff", delay),
			logging.Time("next_attempt_at", at),
			logging.String(logging.FieldImpact, "segment generation is delayed"),
			logging.String(logging.FieldErrorHint, details.Hint),
		)
		return
	}

	eventType := "retry_exhausted"
	if services.IsPermanent(cause) {
		eventType = "permanent_failure"
	}

	machine := NewJobStateMachine(m.store, job, m.orch.deps.Progress)
	if err := machine.Fail(ctx, cause); err != nil {
		m.rememberUnsettled(job.ID, cause)
		logging.ErrorWithContext(logger, "persist job failure failed", "job_fail_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	m.forgetUnsettled(job.ID)
	_ = machine.Publish(ctx, progress.Event{
		JobID:     job.ID,
		SegmentID: job.SegmentID,
		SceneID:   job.SceneID,
		Stage:     job.Stage,
		Label:     "failed",
		Status:    string(queue.StatusFailed),
		Message:   cause.Error(),
	})
	m.countFailed()

	logging.ErrorWithContext(logger, "job failed", eventType,
		logging.Error(cause),
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Int("attempts", job.Attempts),
		logging.Int("max_attempts", job.MaxAttempts),
		logging.Alert("job_failed"),
	)
	m.notifyJobFailed(ctx, job, cause)
}

// settleHandled finishes a redelivered attempt this process already ran. The
// failure recorded for it goes back through the retry policy; without one the
// attempt is treated as a transient failure.
func (m *Manager) settleHandled(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	m.mu.RLock()
	cause, ok := m.unsettled[job.ID]
	m.mu.RUnlock()
	if !ok {
		cause = services.Wrap(services.ErrTransient, "workflow", "redelivery",
			fmt.Sprintf("attempt %d ended without a recorded outcome", job.Attempt), nil)
	}
	logger.Info("settling redelivered attempt",
		logging.Event("job_settle"),
		logging.Error(cause),
	)
	m.handleFailure(ctx, logger, job, cause)
}

func (m *Manager) rememberUnsettled(jobID string, cause error) {
	m.mu.Lock()
	m.unsettled[jobID] = cause
	m.mu.Unlock()
}

func (m *Manager) forgetUnsettled(jobID string) {
	m.mu.Lock()
	delete(m.unsettled, jobID)
	m.mu.Unlock()
}
