package testsupport

import (
	"context"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Fixture bundles the rows created by SeedJob.
type Fixture struct {
	Scene   *queue.Scene
	Segment *queue.Segment
	Job     *queue.Job
}

// NewScene creates a scene with a fixed ID.
func NewScene(t testing.TB, store *queue.Store, id, title string) *queue.Scene {
	t.Helper()

	scene, err := store.CreateScene(context.Background(), queue.Scene{ID: id, Title: title})
	if err != nil {
		t.Fatalf("store.CreateScene: %v", err)
	}
	return scene
}

// NewSegment creates a segment in an existing scene.
func NewSegment(t testing.TB, store *queue.Store, sceneID, id string, order int, prompt string) *queue.Segment {
	t.Helper()

	seg, err := store.CreateSegment(context.Background(), queue.Segment{
		ID:         id,
		SceneID:    sceneID,
		OrderIndex: order,
		Prompt:     prompt,
	})
	if err != nil {
		t.Fatalf("store.CreateSegment: %v", err)
	}
	return seg
}

// NewJob enqueues a job for a segment.
func NewJob(t testing.TB, store *queue.Store, id string, seg *queue.Segment, maxAttempts int) *queue.Job {
	t.Helper()

	job, err := store.EnqueueJob(context.Background(), queue.NewJob{
		ID:          id,
		SegmentID:   seg.ID,
		SceneID:     seg.SceneID,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		t.Fatalf("store.EnqueueJob: %v", err)
	}
	return job
}

// SeedJob creates a scene, its first segment and a pending job in one call.
func SeedJob(t testing.TB, store *queue.Store, jobID, sceneID, segmentID, prompt string) Fixture {
	t.Helper()

	scene := NewScene(t, store, sceneID, "Scene "+sceneID)
	seg := NewSegment(t, store, scene.ID, segmentID, 0, prompt)
	job := NewJob(t, store, jobID, seg, queue.DefaultMaxAttempts)
	return Fixture{Scene: scene, Segment: seg, Job: job}
}
