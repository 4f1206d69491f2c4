package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyforge/internal/config"
)

const userAgent = "storyforge/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventWorkerStarted Event = "worker_started"
	EventJobCompleted  Event = "job_completed"
	EventJobFailed     Event = "job_failed"
	EventTest          Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventWorkerStarted: true,
			EventJobCompleted:  cfg.Notifications.JobCompleted,
			EventJobFailed:     cfg.Notifications.JobFailed,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventWorkerStarted:
		return message{
			title: "Storyforge - Worker Started",
			body:  fmt.Sprintf("Worker started with %s lane(s)", text(payload, "concurrency", "1")),
			tags:  []string{"storyforge", "worker"},
		}, true
	case EventJobCompleted:
		body := fmt.Sprintf("Segment %s ready", text(payload, "segmentId", "?"))
		if url := text(payload, "videoUrl", ""); url != "" {
			body += "\n" + url
		}
		return message{
			title: "Storyforge - Segment Ready",
			body:  body,
			tags:  []string{"storyforge", "segment", "completed"},
		}, true
	case EventJobFailed:
		return message{
			title:    "Storyforge - Job Failed",
			body:     fmt.Sprintf("Job %s failed: %s", text(payload, "jobId", "?"), text(payload, "error", "unknown")),
			tags:     []string{"storyforge", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Storyforge - Test",
			body:     "Notification system test",
			tags:     []string{"storyforge", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key, fallback string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
