package progress_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyforge/internal/progress"
)

func TestHubFetchFiltersByJob(t *testing.T) {
	hub := progress.NewHub(10)
	ctx := context.Background()
	_ = hub.Publish(ctx, progress.Event{JobID: "a", Percent: 10})
	_ = hub.Publish(ctx, progress.Event{JobID: "b", Percent: 20})
	_ = hub.Publish(ctx, progress.Event{JobID: "a", Percent: 25})

	events, next, err := hub.Fetch(ctx, progress.Query{JobID: "a"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 || events[0].Percent != 10 || events[1].Percent != 25 {
		t.Fatalf("unexpected events: %#v", events)
	}
	if next != 3 {
		t.Fatalf("expected next sequence 3, got %d", next)
	}

	more, _, err := hub.Fetch(ctx, progress.Query{JobID: "a", Since: next})
	if err != nil || len(more) != 0 {
		t.Fatalf("expected no newer events, got %#v, %v", more, err)
	}

	latest, ok := hub.Latest("b")
	if !ok || latest.Percent != 20 {
		t.Fatalf("Latest = %#v, %v", latest, ok)
	}
}

func TestHubDropsOldestWhenFull(t *testing.T) {
	hub := progress.NewHub(2)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_ = hub.Publish(ctx, progress.Event{JobID: "a", Percent: float64(i)})
	}
	events, _, _ := hub.Fetch(ctx, progress.Query{})
	if len(events) != 2 || events[0].Percent != 2 {
		t.Fatalf("expected the two newest events, got %#v", events)
	}
}

func TestHubWaitWakesOnPublish(t *testing.T) {
	hub := progress.NewHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan []progress.Event, 1)
	go func() {
		events, _, _ := hub.Fetch(ctx, progress.Query{JobID: "a", Wait: true})
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	_ = hub.Publish(ctx, progress.Event{JobID: "other", Percent: 5})
	_ = hub.Publish(ctx, progress.Event{JobID: "a", Percent: 50})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Percent != 50 {
			t.Fatalf("unexpected events: %#v", events)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestHubWaitEndsWithContext(t *testing.T) {
	hub := progress.NewHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, progress.Query{Wait: true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestMultiReachesEverySink(t *testing.T) {
	var got []string
	failing := progress.SinkFunc(func(context.Context, progress.Event) error {
		got = append(got, "failing")
		return errors.New("down")
	})
	recording := progress.SinkFunc(func(_ context.Context, evt progress.Event) error {
		got = append(got, "recording")
		if evt.Timestamp.IsZero() {
			t.Error("expected timestamp to be filled")
		}
		return nil
	})

	err := progress.Multi(failing, nil, recording).Publish(context.Background(), progress.Event{JobID: "a"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(got) != 2 {
		t.Fatalf("expected both sinks to run, got %v", got)
	}
}
