package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFailed is returned when a requeue targets a job that has not failed.
var ErrNotFailed = errors.New("job is not failed")

// ClaimNext leases the next runnable job. A job is runnable when it is pending
// or processing, holds no live lease and its retry delay has passed. Scenes
// with a live lease and scenes in exclude are skipped so one scene never runs
// twice at once. It returns nil, nil when nothing is runnable.
func (s *Store) ClaimNext(ctx context.Context, lease time.Duration, exclude []string) (*Job, error) {
	ctx = ensureContext(ctx)
	var claimed *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		query := `SELECT id FROM jobs
            WHERE status IN (?, ?)
              AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
              AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
              AND scene_id NOT IN (
                  SELECT scene_id FROM jobs WHERE status = ? AND lease_expires_at > ?
              )`
		args := []any{StatusPending, StatusProcessing, now, now, StatusProcessing, now}
		if len(exclude) > 0 {
			query += ` AND scene_id NOT IN (` + makePlaceholders(len(exclude)) + `)`
			for _, sceneID := range exclude {
				args = append(args, sceneID)
			}
		}
		query += `
            ORDER BY priority DESC,
                     COALESCE((SELECT order_index FROM segments WHERE segments.id = jobs.segment_id), 0) ASC,
                     created_at ASC, id ASC
            LIMIT 1`

		var id string
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("select claimable job: %w", err)
		}
		expires := s.now().Add(lease)
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET lease_expires_at = ?, updated_at = ? WHERE id = ?`,
			nullableTime(&expires), now, id,
		); err != nil {
			return fmt.Errorf("lease job: %w", err)
		}
		job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("reload claimed job: %w", err)
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ExtendLease renews the lease on a job that is still active.
func (s *Store) ExtendLease(ctx context.Context, id string, lease time.Duration) error {
	expires := s.now().Add(lease)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET lease_expires_at = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		nullableTime(&expires), s.timestamp(), id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("extend lease %s: job not active", id)
	}
	return nil
}

// ReleaseLease drops a job's lease without changing its status.
func (s *Store) ReleaseLease(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET lease_expires_at = NULL, updated_at = ? WHERE id = ?`,
		s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// ReclaimExpiredLeases clears leases that ran out without a heartbeat so the
// jobs are redelivered. Terminal jobs keep whatever lease they had.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET lease_expires_at = NULL, updated_at = ?
         WHERE status IN (?, ?) AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		now, StatusPending, StatusProcessing, now,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}

// ScheduleRetry keeps the job PROCESSING, moves it to the next attempt and
// holds it back until at.
func (s *Store) ScheduleRetry(ctx context.Context, id string, nextAttempt int, at time.Time, reason string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, attempt = ?, next_attempt_at = ?, lease_expires_at = NULL,
             error_message = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusProcessing, nextAttempt, nullableTime(&at), nullableString(reason), s.timestamp(),
		id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("schedule retry %s: job not active", id)
	}
	return nil
}

// RequeueFailed creates a fresh job for the segment of each failed job and
// resets those segments to PENDING. The failed jobs stay terminal. With no
// ids every failed job whose segment has no newer job is requeued.
func (s *Store) RequeueFailed(ctx context.Context, ids ...string) ([]*Job, error) {
	ctx = ensureContext(ctx)
	if len(ids) == 0 {
		var err error
		if ids, err = s.unrequeuedFailedIDs(ctx); err != nil {
			return nil, err
		}
	}
	created := make([]string, 0, len(ids))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created = created[:0]
		for _, id := range ids {
			job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("requeue %s: %w", id, sql.ErrNoRows)
			}
			if err != nil {
				return fmt.Errorf("requeue %s: %w", id, err)
			}
			if job.Status != StatusFailed {
				return fmt.Errorf("requeue %s: %w (status %s)", id, ErrNotFailed, job.Status)
			}
			ts := s.timestamp()
			newID := uuid.NewString()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO jobs (
                    id, type, segment_id, scene_id, status, priority, progress,
                    attempt, attempts, max_attempts, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?)`,
				newID, job.Type, job.SegmentID, job.SceneID, StatusPending, job.Priority,
				job.MaxAttempts, ts, ts,
			); err != nil {
				return fmt.Errorf("insert requeued job: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE segments SET status = ?, updated_at = ? WHERE id = ?`,
				StatusPending, ts, job.SegmentID,
			); err != nil {
				return fmt.Errorf("reset segment: %w", err)
			}
			created = append(created, newID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(created))
	for _, id := range created {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Store) unrequeuedFailedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs f WHERE status = ? AND NOT EXISTS (
             SELECT 1 FROM jobs n WHERE n.segment_id = f.segment_id AND n.created_at > f.created_at
         ) ORDER BY created_at`,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
