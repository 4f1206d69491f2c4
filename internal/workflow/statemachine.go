package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"storyforge/internal/progress"
	"storyforge/internal/queue"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid job status transition")

// PROCESSING -> PROCESSING is a new execution attempt after a retry.
var transitions = map[queue.Status][]queue.Status{
	queue.StatusPending:    {queue.StatusProcessing},
	queue.StatusProcessing: {queue.StatusProcessing, queue.StatusCompleted, queue.StatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to queue.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// JobStateMachine owns one execution attempt of a job. It persists status
// changes for the job and its segment and acts as the progress sink for the
// attempt, keeping persisted progress monotonic.
type JobStateMachine struct {
	repo Repository
	sink progress.Sink
	now  func() time.Time

	mu       sync.Mutex
	job      *queue.Job
	progress float64
}

// NewJobStateMachine wraps job. Status changes are applied to job in place.
func NewJobStateMachine(repo Repository, job *queue.Job, sink progress.Sink) *JobStateMachine {
	if sink == nil {
		sink = progress.Discard
	}
	return &JobStateMachine{repo: repo, sink: sink, now: time.Now, job: job, progress: job.Progress}
}

// Status returns the job's current status.
func (m *JobStateMachine) Status() queue.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job.Status
}

// Progress returns the highest progress recorded in this attempt.
func (m *JobStateMachine) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Begin enters PROCESSING for a new attempt: it records the start time, counts
// the execution and resets progress.
func (m *JobStateMachine) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beginLocked(ctx)
}

func (m *JobStateMachine) beginLocked(ctx context.Context) error {
	if err := m.check(queue.StatusProcessing); err != nil {
		return err
	}
	started := m.now().UTC()
	if err := m.repo.UpdateJob(ctx, m.job.ID, queue.JobUpdate{
		Status:      queue.Ptr(queue.StatusProcessing),
		Progress:    queue.Ptr(0.0),
		Stage:       queue.Ptr(""),
		StartedAt:   &started,
		IncAttempts: true,
		ClearNextAt: true,
	}); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	m.job.Status = queue.StatusProcessing
	m.job.StartedAt = &started
	m.job.Attempts++
	m.job.Progress = 0
	m.job.NextAttemptAt = nil
	m.progress = 0

	if err := m.updateSegmentStatus(ctx, queue.StatusProcessing); err != nil {
		return fmt.Errorf("mark segment processing: %w", err)
	}
	return nil
}

// Publish implements progress.Sink. Progress lower than what was already
// reported is raised to the recorded value before it is persisted and
// forwarded.
func (m *JobStateMachine) Publish(ctx context.Context, evt progress.Event) error {
	m.mu.Lock()
	if evt.Percent < m.progress {
		evt.Percent = m.progress
	}
	advanced := evt.Percent > m.progress || evt.Stage != m.job.Stage
	m.progress = evt.Percent
	m.job.Progress = evt.Percent
	m.job.Stage = evt.Stage
	status := m.job.Status
	id := m.job.ID
	m.mu.Unlock()

	var persistErr error
	if advanced && !status.IsTerminal() {
		persistErr = m.repo.UpdateJob(ctx, id, queue.JobUpdate{
			Progress: queue.Ptr(evt.Percent),
			Stage:    queue.Ptr(evt.Stage),
		})
	}
	if evt.Status == "" {
		evt.Status = string(status)
	}
	return errors.Join(persistErr, m.sink.Publish(ctx, evt))
}

// Complete marks the job COMPLETED with its result payload and progress 100.
func (m *JobStateMachine) Complete(ctx context.Context, resultJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(queue.StatusCompleted); err != nil {
		return err
	}
	done := m.now().UTC()
	if err := m.repo.UpdateJob(ctx, m.job.ID, queue.JobUpdate{
		Status:      queue.Ptr(queue.StatusCompleted),
		Progress:    queue.Ptr(100.0),
		ResultJSON:  queue.Ptr(resultJSON),
		Error:       queue.Ptr(""),
		CompletedAt: &done,
		ClearLease:  true,
	}); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	m.job.Status = queue.StatusCompleted
	m.job.Progress = 100
	m.job.ResultJSON = resultJSON
	m.job.Error = ""
	m.job.CompletedAt = &done
	m.job.LeaseExpiresAt = nil
	m.progress = 100
	return nil
}

// Fail marks the job and its segment FAILED and records cause. A job that
// never left PENDING passes through PROCESSING first so the persisted history
// stays on the allowed path.
func (m *JobStateMachine) Fail(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status == queue.StatusPending {
		if err := m.beginLocked(ctx); err != nil {
			return err
		}
	}
	if err := m.check(queue.StatusFailed); err != nil {
		return err
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	done := m.now().UTC()
	if err := m.repo.UpdateJob(ctx, m.job.ID, queue.JobUpdate{
		Status:      queue.Ptr(queue.StatusFailed),
		Error:       queue.Ptr(msg),
		CompletedAt: &done,
		ClearLease:  true,
		ClearNextAt: true,
	}); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	m.job.Status = queue.StatusFailed
	m.job.Error = msg
	m.job.CompletedAt = &done
	m.job.LeaseExpiresAt = nil

	if err := m.updateSegmentStatus(ctx, queue.StatusFailed); err != nil {
		return fmt.Errorf("mark segment failed: %w", err)
	}
	return nil
}

// A job may reference a segment that was never created; that job still has
// to reach a terminal state.
func (m *JobStateMachine) updateSegmentStatus(ctx context.Context, status queue.Status) error {
	if m.job.SegmentID == "" {
		return nil
	}
	err := m.repo.UpdateSegment(ctx, m.job.SegmentID, queue.SegmentUpdate{Status: queue.Ptr(status)})
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func (m *JobStateMachine) check(to queue.Status) error {
	if !CanTransition(m.job.Status, to) {
		return fmt.Errorf("%w: %s -> %s (job %s)", ErrInvalidTransition, m.job.Status, to, m.job.ID)
	}
	return nil
}
