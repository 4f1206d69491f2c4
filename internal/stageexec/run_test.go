package stageexec_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyforge/internal/logging"
	"storyforge/internal/progress"
	"storyforge/internal/services"
	"storyforge/internal/stage"
	"storyforge/internal/stageexec"
)

type recorder struct {
	events []progress.Event
}

func (r *recorder) Publish(_ context.Context, evt progress.Event) error {
	r.events = append(r.events, evt)
	return nil
}

type state struct {
	ran bool
}

func TestRunPublishesStartAndEnd(t *testing.T) {
	rec := &recorder{}
	st := &state{}
	desc := stage.New(stage.Synthesize, true, func(ctx context.Context, s *state) error {
		if name, _ := services.StageFromContext(ctx); name != "synthesize" {
			t.Errorf("expected stage in context, got %q", name)
		}
		if len(rec.events) != 1 {
			t.Errorf("start event must be published before work, got %d events", len(rec.events))
		}
		s.ran = true
		return nil
	})

	err := stageexec.Run(context.Background(), stageexec.Options[*state]{
		Logger: logging.NewNop(),
		Sink:   rec,
		Event:  progress.Event{JobID: "j1", SegmentID: "s1"},
		Stage:  desc,
		State:  st,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !st.ran {
		t.Fatal("stage did not run")
	}
	if len(rec.events) != 2 {
		t.Fatalf("expected start and end events, got %#v", rec.events)
	}
	start, end := rec.events[0], rec.events[1]
	if start.Percent != 40 || start.Label != "generating_video" || start.JobID != "j1" || start.Stage != "synthesize" {
		t.Fatalf("unexpected start event: %#v", start)
	}
	if end.Percent != 70 || end.Label != "video_generated" {
		t.Fatalf("unexpected end event: %#v", end)
	}
}

func TestRunPropagatesFailureWithoutEndEvent(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("provider unavailable")
	calls := 0
	desc := stage.New(stage.Expand, true, func(context.Context, *state) error {
		calls++
		return boom
	})

	err := stageexec.Run(context.Background(), stageexec.Options[*state]{Sink: rec, Stage: desc, State: &state{}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if services.IsPermanent(err) {
		t.Fatal("retryable stage failure must stay transient")
	}
	if calls != 1 {
		t.Fatalf("runner must not retry, got %d calls", calls)
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected only the start event, got %d", len(rec.events))
	}
}

func TestRunMarksNonRetryableFailurePermanent(t *testing.T) {
	desc := stage.New(stage.Finalize, false, func(context.Context, *state) error {
		return errors.New("disk full")
	})
	err := stageexec.Run(context.Background(), stageexec.Options[*state]{Stage: desc, State: &state{}})
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestRunTimeoutIsClassified(t *testing.T) {
	desc := stage.New(stage.Transcode, true, func(ctx context.Context, _ *state) error {
		<-ctx.Done()
		return ctx.Err()
	})
	err := stageexec.Run(context.Background(), stageexec.Options[*state]{
		Stage:   desc,
		State:   &state{},
		Timeout: 10 * time.Millisecond,
	})
	if !errors.Is(err, services.ErrTimeout) || services.IsPermanent(err) {
		t.Fatalf("expected transient timeout, got %v", err)
	}
}

func TestRunRejectsMissingExecute(t *testing.T) {
	err := stageexec.Run(context.Background(), stageexec.Options[*state]{Stage: stage.Descriptor[*state]{Name: stage.Upload}})
	if err == nil {
		t.Fatal("expected error for missing execute func")
	}
}
