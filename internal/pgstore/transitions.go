package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"storyforge/internal/queue"
)

// ClaimNext leases the next runnable job. Rows another worker is claiming are
// skipped rather than waited on. Scenes with a live lease and scenes in
// exclude are skipped. It returns nil, nil when nothing is runnable.
func (s *Store) ClaimNext(ctx context.Context, lease time.Duration, exclude []string) (*queue.Job, error) {
	if exclude == nil {
		exclude = []string{}
	}
	var claimed *queue.Job
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		now := s.timestamp()
		var id string
		err := tx.QueryRow(ctx,
			`SELECT j.id FROM jobs j
             LEFT JOIN segments seg ON seg.id = j.segment_id
             WHERE j.status IN ($1, $2)
               AND (j.lease_expires_at IS NULL OR j.lease_expires_at <= $3)
               AND (j.next_attempt_at IS NULL OR j.next_attempt_at <= $3)
               AND j.scene_id <> ALL($4)
               AND NOT EXISTS (
                   SELECT 1 FROM jobs l
                   WHERE l.scene_id = j.scene_id AND l.status = $2 AND l.lease_expires_at > $3
               )
             ORDER BY j.priority DESC, COALESCE(seg.order_index, 0) ASC, j.created_at ASC, j.id ASC
             LIMIT 1
             FOR UPDATE OF j SKIP LOCKED`,
			string(queue.StatusPending), string(queue.StatusProcessing), now, exclude,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select claimable job: %w", err)
		}
		job, err := scanJob(tx.QueryRow(ctx,
			`UPDATE jobs SET lease_expires_at = $1, updated_at = $2 WHERE id = $3 RETURNING `+jobColumns,
			now.Add(lease), now, id,
		))
		if err != nil {
			return fmt.Errorf("lease job: %w", err)
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
	now := s.timestamp()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET lease_expires_at = $1, updated_at = $2 WHERE id = $3 AND status IN ($4, $5)`,
		now.Add(lease), now, id, string(queue.StatusPending), string(queue.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("extend lease %s: job not active", id)
	}
	return nil
}

// ReleaseLease drops a job's lease without changing its status.
func (s *Store) ReleaseLease(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE jobs SET lease_expires_at = NULL, updated_at = $1 WHERE id = $2`,
		s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// ReclaimExpiredLeases clears leases that ran out without a heartbeat.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	now := s.timestamp()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET lease_expires_at = NULL, updated_at = $1
         WHERE status IN ($2, $3) AND lease_expires_at IS NOT NULL AND lease_expires_at <= $1`,
		now, string(queue.StatusPending), string(queue.StatusProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ScheduleRetry keeps the job PROCESSING, moves it to the next attempt and
// holds it back until at.
func (s *Store) ScheduleRetry(ctx context.Context, id string, nextAttempt int, at time.Time, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, attempt = $2, next_attempt_at = $3, lease_expires_at = NULL,
             error_message = $4, updated_at = $5
         WHERE id = $6 AND status IN ($7, $1)`,
		string(queue.StatusProcessing), nextAttempt, at.UTC(), nullable(reason), s.timestamp(),
		id, string(queue.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule retry %s: job not active", id)
	}
	return nil
}

// RequeueFailed creates a fresh job for the segment of each failed job and
// resets those segments to PENDING. With no ids every failed job whose segment
// has no newer job is requeued.
func (s *Store) RequeueFailed(ctx context.Context, ids ...string) ([]*queue.Job, error) {
	if len(ids) == 0 {
		var err error
		if ids, err = s.unrequeuedFailedIDs(ctx); err != nil {
			return nil, err
		}
	}
	var created []string
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		created = created[:0]
		for _, id := range ids {
			job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("requeue %s: %w", id, sql.ErrNoRows)
			}
			if err != nil {
				return fmt.Errorf("requeue %s: %w", id, err)
			}
			if job.Status != queue.StatusFailed {
				return fmt.Errorf("requeue %s: %w (status %s)", id, queue.ErrNotFailed, job.Status)
			}
			ts := s.timestamp()
			newID := uuid.NewString()
			if err := insertJob(ctx, tx, newID, job.SegmentID, job.SceneID, job.Priority, job.MaxAttempts, ts); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`UPDATE segments SET status = $1, updated_at = $2 WHERE id = $3`,
				string(queue.StatusPending), ts, job.SegmentID,
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
	jobs := make([]*queue.Job, 0, len(created))
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
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs f WHERE status = $1 AND NOT EXISTS (
             SELECT 1 FROM jobs n WHERE n.segment_id = f.segment_id AND n.created_at > f.created_at
         ) ORDER BY created_at`,
		string(queue.StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	return ids, nil
}
