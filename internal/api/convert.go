package api

import (
	"encoding/json"
	"sort"
	"time"

	"storyforge/internal/queue"
	"storyforge/internal/workflow"
)

// FromJob converts a queue job to its API representation.
func FromJob(job *queue.Job, now time.Time) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:          job.ID,
		SegmentID:   job.SegmentID,
		SceneID:     job.SceneID,
		Status:      string(job.Status),
		Priority:    job.Priority,
		Progress:    JobProgress{Stage: job.Stage, Percent: job.Progress},
		Attempt:     job.Attempt,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Leased:      job.Leased(now),
		CreatedAt:   formatTime(job.CreatedAt),
		UpdatedAt:   formatTime(job.UpdatedAt),
	}
	if job.Error != "" {
		dto.ErrorMessage = job.Error
	}
	if job.NextAttemptAt != nil {
		dto.NextAttemptAt = formatTime(*job.NextAttemptAt)
	}
	if job.StartedAt != nil {
		dto.StartedAt = formatTime(*job.StartedAt)
	}
	if job.CompletedAt != nil {
		dto.CompletedAt = formatTime(*job.CompletedAt)
	}
	if raw := job.ResultJSON; raw != "" && json.Valid([]byte(raw)) {
		dto.Result = json.RawMessage(raw)
	}
	return dto
}

// FromSegment converts a stored segment.
func FromSegment(seg *queue.Segment) Segment {
	if seg == nil {
		return Segment{}
	}
	return Segment{
		ID:             seg.ID,
		SceneID:        seg.SceneID,
		OrderIndex:     seg.OrderIndex,
		Prompt:         seg.Prompt,
		ExpandedScript: seg.ExpandedScript,
		Status:         string(seg.Status),
		VideoURL:       seg.VideoURL,
		HLSURL:         seg.HLSURL,
		ThumbnailURL:   seg.ThumbnailURL,
		Duration:       seg.Duration,
		ContinuityHash: seg.ContinuityHash,
		UpdatedAt:      formatTime(seg.UpdatedAt),
	}
}

// FromScene converts a scene and its segments.
func FromScene(scene *queue.Scene, segments []*queue.Segment) Scene {
	if scene == nil {
		return Scene{}
	}
	dto := Scene{
		ID:          scene.ID,
		Title:       scene.Title,
		Description: scene.Description,
		CreatedAt:   formatTime(scene.CreatedAt),
	}
	for _, seg := range segments {
		dto.Segments = append(dto.Segments, FromSegment(seg))
	}
	return dto
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary, now time.Time) WorkflowStatus {
	status := WorkflowStatus{
		Running:      summary.Running,
		QueueStats:   make(map[string]int, len(summary.QueueStats)),
		ActiveScenes: append([]string{}, summary.ActiveScenes...),
		Completed:    summary.Counters.Completed,
		Failed:       summary.Counters.Failed,
		Retried:      summary.Counters.Retried,
		LastError:    summary.LastError,
	}
	for st, count := range summary.QueueStats {
		status.QueueStats[string(st)] = count
	}
	sort.Strings(status.ActiveScenes)
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob, now)
		status.LastJob = &last
	}
	return status
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
