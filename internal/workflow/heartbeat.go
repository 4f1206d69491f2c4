package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storyforge/internal/logging"
)

const (
	defaultHeartbeatInterval = 15 * time.Second
	defaultLease             = 2 * time.Minute
)

// HeartbeatMonitor keeps job leases alive and returns abandoned jobs to the
// queue.
type HeartbeatMonitor struct {
	store             Queue
	logger            *slog.Logger
	heartbeatInterval time.Duration
	lease             time.Duration
}

// NewHeartbeatMonitor creates a new monitor. timeout is the lease length; a
// job whose lease is not renewed within it is redelivered.
func NewHeartbeatMonitor(store Queue, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	if timeout <= 0 {
		timeout = defaultLease
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		lease:             timeout,
	}
}

// Lease returns the lease length requested when claiming a job.
func (h *HeartbeatMonitor) Lease() time.Duration {
	return h.lease
}

// ReclaimExpired clears leases that were not renewed in time.
func (h *HeartbeatMonitor) ReclaimExpired(ctx context.Context, logger *slog.Logger) error {
	reclaimed, err := h.store.ReclaimExpiredLeases(ctx)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed expired leases",
			logging.Int64("count", reclaimed),
			logging.Event("lease_reclaimed"),
		)
	}
	return nil
}

// StartLoop renews the lease on jobID until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.ExtendLease(ctx, jobID, h.lease); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("lease renewal failed", logging.Error(err))
			}
		}
	}
}
