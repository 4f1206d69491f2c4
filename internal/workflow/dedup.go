package workflow

import (
	"context"
	"fmt"
	"sync"

	"storyforge/internal/queue"
	"storyforge/internal/services"
)

// Verdict is the DedupGuard's answer for one delivery.
type Verdict int

const (
	// VerdictProcess means the delivery should run.
	VerdictProcess Verdict = iota
	// VerdictHandled means this worker already handled the attempt.
	VerdictHandled
	// VerdictCompleted means the job already completed; the delivery is a no-op success.
	VerdictCompleted
	// VerdictFailed means the job already failed terminally.
	VerdictFailed
)

func (v Verdict) String() string {
	switch v {
	case VerdictProcess:
		return "process"
	case VerdictHandled:
		return "already_handled"
	case VerdictCompleted:
		return "already_completed"
	case VerdictFailed:
		return "already_failed"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// DedupGuard stops redelivered jobs from re-running side effects. It keeps
// the attempts handled by this process in memory and falls back to the
// persisted job status, which is the source of truth.
type DedupGuard struct {
	jobs interface {
		GetJob(ctx context.Context, id string) (*queue.Job, error)
	}

	mu        sync.Mutex
	processed map[string]int
}

// NewDedupGuard builds a guard reading job status from repo.
func NewDedupGuard(repo Repository) *DedupGuard {
	return &DedupGuard{jobs: repo, processed: make(map[string]int)}
}

// Check decides whether attempt of jobID should run. The local set is
// consulted first so a repeat delivery costs no round trip.
func (g *DedupGuard) Check(ctx context.Context, jobID string, attempt int) (Verdict, error) {
	g.mu.Lock()
	handled, seen := g.processed[jobID]
	g.mu.Unlock()
	if seen && handled >= attempt {
		return VerdictHandled, nil
	}

	job, err := g.jobs.GetJob(ctx, jobID)
	if err != nil {
		return VerdictProcess, fmt.Errorf("dedup lookup %s: %w", jobID, err)
	}
	if job == nil {
		return VerdictProcess, services.Wrap(services.ErrNotFound, "dedup", "get job", "job "+jobID+" does not exist", nil)
	}
	switch job.Status {
	case queue.StatusCompleted:
		return VerdictCompleted, nil
	case queue.StatusFailed:
		return VerdictFailed, nil
	}
	return VerdictProcess, nil
}

// ShouldProcess reports whether attempt of jobID should run.
func (g *DedupGuard) ShouldProcess(ctx context.Context, jobID string, attempt int) (bool, error) {
	v, err := g.Check(ctx, jobID, attempt)
	if err != nil {
		return false, err
	}
	return v == VerdictProcess, nil
}

// MarkProcessed records that attempt of jobID was handled, whatever the result.
func (g *DedupGuard) MarkProcessed(jobID string, attempt int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.processed[jobID]; !ok || attempt > prev {
		g.processed[jobID] = attempt
	}
}
