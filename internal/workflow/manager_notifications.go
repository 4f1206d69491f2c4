package workflow

import (
	"context"

	"storyforge/internal/logging"
	"storyforge/internal/notifications"
	"storyforge/internal/queue"
)

func (m *Manager) notifyWorkerStarted(ctx context.Context, lanes int) {
	m.publish(ctx, notifications.EventWorkerStarted, notifications.Payload{"concurrency": lanes})
}

func (m *Manager) notifyJobCompleted(ctx context.Context, job *queue.Job, result *Result) {
	payload := notifications.Payload{
		"jobId":     job.ID,
		"segmentId": job.SegmentID,
		"sceneId":   job.SceneID,
	}
	if result != nil {
		payload["videoUrl"] = result.VideoURL
		payload["duration"] = result.Duration
	}
	m.publish(ctx, notifications.EventJobCompleted, payload)
}

func (m *Manager) notifyJobFailed(ctx context.Context, job *queue.Job, cause error) {
	payload := notifications.Payload{
		"jobId":     job.ID,
		"segmentId": job.SegmentID,
		"sceneId":   job.SceneID,
	}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	m.publish(ctx, notifications.EventJobFailed, payload)
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		m.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check ntfy topic and network"),
		)
	}
}
