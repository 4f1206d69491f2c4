// Package progress carries job progress events from the pipeline to whoever
// is listening: the job row, the in-process Hub behind the SSE endpoint and
// notification hooks. Publishing is fire-and-forget; a sink that fails never
// fails the job.
package progress

import (
	"context"
	"errors"
	"time"
)

// Event is one progress update for a job.
type Event struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	JobID     string    `json:"jobId"`
	SegmentID string    `json:"segmentId,omitempty"`
	SceneID   string    `json:"sceneId,omitempty"`
	Stage     string    `json:"stage"`
	Label     string    `json:"label,omitempty"`
	Percent   float64   `json:"percent"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Sink receives progress events.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

type multiSink []Sink

// Multi fans an event out to every non-nil sink. All sinks see the event even
// when an earlier one fails; the errors are joined.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Publish(ctx context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
