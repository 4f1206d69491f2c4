package main

import (
	"context"

	"storyforge/internal/bible"
	"storyforge/internal/daemon"
	"storyforge/internal/pgstore"
	"storyforge/internal/queue"
)

// jobStore is everything the CLI needs from persistence. The SQLite and the
// PostgreSQL stores both provide it.
type jobStore interface {
	daemon.Store
	CreateScene(ctx context.Context, scene queue.Scene) (*queue.Scene, error)
	ListScenes(ctx context.Context) ([]*queue.Scene, error)
	CreateSegment(ctx context.Context, seg queue.Segment) (*queue.Segment, error)
	NextOrderIndex(ctx context.Context, sceneID string) (int, error)
	EnqueueJob(ctx context.Context, req queue.NewJob) (*queue.Job, error)
	ListJobsForSegment(ctx context.Context, segmentID string) ([]*queue.Job, error)
	PutSceneBible(ctx context.Context, b *bible.Bible) (*bible.Bible, error)
}

var (
	_ jobStore = (*queue.Store)(nil)
	_ jobStore = (*pgstore.Store)(nil)
)
