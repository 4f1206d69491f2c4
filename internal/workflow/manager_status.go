package workflow

import (
	"context"
	"sort"

	"storyforge/internal/logging"
	"storyforge/internal/queue"
)

// Counters tallies what this process has done since it started.
type Counters struct {
	Completed int
	Failed    int
	Retried   int
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	LastError    string
	LastJob      *queue.Job
	ActiveScenes []string
	Counters     Counters
	QueueStats   map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Counters: m.counters}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		copy := *m.lastJob
		summary.LastJob = &copy
	}
	for sceneID := range m.scenes {
		summary.ActiveScenes = append(summary.ActiveScenes, sceneID)
	}
	m.mu.RUnlock()
	sort.Strings(summary.ActiveScenes)

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}

func (m *Manager) countCompleted() {
	m.mu.Lock()
	m.counters.Completed++
	m.mu.Unlock()
}

func (m *Manager) countFailed() {
	m.mu.Lock()
	m.counters.Failed++
	m.mu.Unlock()
}

func (m *Manager) countRetried() {
	m.mu.Lock()
	m.counters.Retried++
	m.mu.Unlock()
}
