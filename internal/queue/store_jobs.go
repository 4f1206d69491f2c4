package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrActiveJob is returned when a segment already has a job in flight.
var ErrActiveJob = errors.New("segment already has an active job")

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewJob describes a job to enqueue.
type NewJob struct {
	ID          string `validate:"omitempty,max=64"`
	SegmentID   string `validate:"required"`
	SceneID     string `validate:"required"`
	Priority    int    `validate:"gte=-100,lte=100"`
	MaxAttempts int    `validate:"gte=0,lte=20"`
}

// Validate checks the request against its struct tags.
func (r NewJob) Validate() error {
	return validate.Struct(r)
}

// EnqueueJob inserts a PENDING generate_segment job. The referenced segment is
// not required to exist yet; a missing segment fails the job when it runs.
func (s *Store) EnqueueJob(ctx context.Context, req NewJob) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = DefaultMaxAttempts
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM jobs WHERE segment_id = ? AND status IN (?, ?)`,
			req.SegmentID, StatusPending, StatusProcessing,
		).Scan(&active); err != nil {
			return fmt.Errorf("check active jobs: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("%w: %s", ErrActiveJob, req.SegmentID)
		}
		ts := s.timestamp()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (
                id, type, segment_id, scene_id, status, priority, progress,
                attempt, attempts, max_attempts, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?)`,
			req.ID,
			JobTypeGenerateSegment,
			req.SegmentID,
			req.SceneID,
			StatusPending,
			req.Priority,
			req.MaxAttempts,
			ts,
			ts,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, req.ID)
}

// GetJob fetches a job by ID. It returns nil, nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status, newest first. No statuses means all.
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at DESC, id`
	return s.queryJobs(ctx, query, args...)
}

// ListJobsForSegment returns a segment's jobs, oldest first.
func (s *Store) ListJobsForSegment(ctx context.Context, segmentID string) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE segment_id = ? ORDER BY created_at, id`,
		segmentID,
	)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob applies a partial update in a single statement.
func (s *Store) UpdateJob(ctx context.Context, id string, update JobUpdate) error {
	sets, args := s.jobUpdateClauses(update)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.execWithRetry(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (s *Store) jobUpdateClauses(update JobUpdate) ([]string, []any) {
	sets := make([]string, 0, 12)
	args := make([]any, 0, 12)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Progress != nil {
		add("progress", *update.Progress)
	}
	if update.Stage != nil {
		add("stage", nullableString(*update.Stage))
	}
	if update.ResultJSON != nil {
		add("result_json", nullableString(*update.ResultJSON))
	}
	if update.Error != nil {
		add("error_message", nullableString(*update.Error))
	}
	if update.Attempt != nil {
		add("attempt", *update.Attempt)
	}
	if update.IncAttempts {
		sets = append(sets, "attempts = attempts + 1")
	}
	switch {
	case update.ClearNextAt:
		add("next_attempt_at", nil)
	case update.NextAttemptAt != nil:
		add("next_attempt_at", nullableTime(update.NextAttemptAt))
	}
	switch {
	case update.ClearLease:
		add("lease_expires_at", nil)
	case update.LeaseExpiresAt != nil:
		add("lease_expires_at", nullableTime(update.LeaseExpiresAt))
	}
	if update.StartedAt != nil {
		add("started_at", nullableTime(update.StartedAt))
	}
	if update.CompletedAt != nil {
		add("completed_at", nullableTime(update.CompletedAt))
	}
	if len(sets) == 0 {
		return nil, nil
	}
	add("updated_at", s.timestamp())
	return sets, args
}
