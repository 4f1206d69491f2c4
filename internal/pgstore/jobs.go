package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"storyforge/internal/queue"
)

const jobColumns = `id, type, segment_id, scene_id, status, priority, progress, stage,
    result_json, error_message, attempt, attempts, max_attempts, next_attempt_at,
    lease_expires_at, created_at, updated_at, started_at, completed_at`

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		job                       queue.Job
		status                    string
		stage, result, errMessage *string
	)
	if err := row.Scan(
		&job.ID, &job.Type, &job.SegmentID, &job.SceneID, &status, &job.Priority, &job.Progress,
		&stage, &result, &errMessage, &job.Attempt, &job.Attempts, &job.MaxAttempts,
		&job.NextAttemptAt, &job.LeaseExpiresAt, &job.CreatedAt, &job.UpdatedAt,
		&job.StartedAt, &job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Status = queue.Status(status)
	job.Stage = deref(stage)
	job.ResultJSON = deref(result)
	job.Error = deref(errMessage)
	return &job, nil
}

func insertJob(ctx context.Context, tx pgx.Tx, id string, segmentID, sceneID string, priority, maxAttempts int, ts any) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO jobs (
            id, type, segment_id, scene_id, status, priority, progress,
            attempt, attempts, max_attempts, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, $7, $8, $8)`,
		id, queue.JobTypeGenerateSegment, segmentID, sceneID, string(queue.StatusPending),
		priority, maxAttempts, ts,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// EnqueueJob inserts a PENDING generate_segment job unless the segment
// already has one in flight.
func (s *Store) EnqueueJob(ctx context.Context, req queue.NewJob) (*queue.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = queue.DefaultMaxAttempts
	}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// Serializes enqueues for one segment.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.SegmentID); err != nil {
			return fmt.Errorf("lock segment: %w", err)
		}
		var active int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(1) FROM jobs WHERE segment_id = $1 AND status IN ($2, $3)`,
			req.SegmentID, string(queue.StatusPending), string(queue.StatusProcessing),
		).Scan(&active); err != nil {
			return fmt.Errorf("check active jobs: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("%w: %s", queue.ErrActiveJob, req.SegmentID)
		}
		return insertJob(ctx, tx, req.ID, req.SegmentID, req.SceneID, req.Priority, req.MaxAttempts, s.timestamp())
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, req.ID)
}

// GetJob fetches a job by ID. It returns nil, nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status, newest first. No statuses means all.
func (s *Store) ListJobs(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	if len(statuses) == 0 {
		return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id`)
	}
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ANY($1) ORDER BY created_at DESC, id`,
		names,
	)
}

// ListJobsForSegment returns a segment's jobs, oldest first.
func (s *Store) ListJobsForSegment(ctx context.Context, segmentID string) ([]*queue.Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE segment_id = $1 ORDER BY created_at, id`,
		segmentID,
	)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*queue.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*queue.Job
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
func (s *Store) UpdateJob(ctx context.Context, id string, update queue.JobUpdate) error {
	var set setClause
	if update.Status != nil {
		set.add("status", string(*update.Status))
	}
	if update.Progress != nil {
		set.add("progress", *update.Progress)
	}
	if update.Stage != nil {
		set.add("stage", nullable(*update.Stage))
	}
	if update.ResultJSON != nil {
		set.add("result_json", nullable(*update.ResultJSON))
	}
	if update.Error != nil {
		set.add("error_message", nullable(*update.Error))
	}
	if update.Attempt != nil {
		set.add("attempt", *update.Attempt)
	}
	if update.IncAttempts {
		set.addRaw("attempts = attempts + 1")
	}
	switch {
	case update.ClearNextAt:
		set.addRaw("next_attempt_at = NULL")
	case update.NextAttemptAt != nil:
		set.add("next_attempt_at", utcPtr(update.NextAttemptAt))
	}
	switch {
	case update.ClearLease:
		set.addRaw("lease_expires_at = NULL")
	case update.LeaseExpiresAt != nil:
		set.add("lease_expires_at", utcPtr(update.LeaseExpiresAt))
	}
	if update.StartedAt != nil {
		set.add("started_at", utcPtr(update.StartedAt))
	}
	if update.CompletedAt != nil {
		set.add("completed_at", utcPtr(update.CompletedAt))
	}
	if set.empty() {
		return nil
	}
	set.add("updated_at", s.timestamp())
	query, args := set.build("jobs", id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[queue.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[queue.Status(status)] = count
	}
	return stats, rows.Err()
}
