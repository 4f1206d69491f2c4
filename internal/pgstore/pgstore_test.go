package pgstore_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/bible"
	"storyforge/internal/pgstore"
	"storyforge/internal/queue"
	"storyforge/internal/workflow"
)

var _ workflow.Queue = (*pgstore.Store)(nil)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

// openStore connects to STORYFORGE_TEST_DATABASE_URL and truncates every table.
func openStore(t *testing.T) (*pgstore.Store, *clock) {
	t.Helper()
	url := os.Getenv("STORYFORGE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STORYFORGE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := pgstore.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Truncate(ctx))

	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.SetClock(c.Now)
	return store, c
}

func seed(t *testing.T, store *pgstore.Store, sceneID string, segments ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := store.CreateScene(ctx, queue.Scene{ID: sceneID, Title: "Scene " + sceneID})
	require.NoError(t, err)
	for i, id := range segments {
		_, err := store.CreateSegment(ctx, queue.Segment{ID: id, SceneID: sceneID, OrderIndex: i, Prompt: "prompt " + id})
		require.NoError(t, err)
	}
}

func TestEnqueueAndClaim(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	seed(t, store, "scene-a", "seg-1", "seg-2")
	seed(t, store, "scene-b", "seg-3")

	_, err := store.EnqueueJob(ctx, queue.NewJob{ID: "j2", SegmentID: "seg-2", SceneID: "scene-a"})
	require.NoError(t, err)
	_, err = store.EnqueueJob(ctx, queue.NewJob{ID: "j1", SegmentID: "seg-1", SceneID: "scene-a"})
	require.NoError(t, err)
	_, err = store.EnqueueJob(ctx, queue.NewJob{ID: "j3", SegmentID: "seg-3", SceneID: "scene-b", Priority: 5})
	require.NoError(t, err)

	_, err = store.EnqueueJob(ctx, queue.NewJob{SegmentID: "seg-1", SceneID: "scene-a"})
	assert.ErrorIs(t, err, queue.ErrActiveJob)

	first, err := store.ClaimNext(ctx, time.Minute, nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "j3", first.ID)

	second, err := store.ClaimNext(ctx, time.Minute, nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "j1", second.ID, "lower order index wins within a scene")

	third, err := store.ClaimNext(ctx, time.Minute, nil)
	require.NoError(t, err)
	assert.Nil(t, third, "scene-a is leased")
}

func TestClaimSkipsExcludedScenes(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	seed(t, store, "scene-a", "seg-1")
	_, err := store.EnqueueJob(ctx, queue.NewJob{ID: "j1", SegmentID: "seg-1", SceneID: "scene-a"})
	require.NoError(t, err)

	job, err := store.ClaimNext(ctx, time.Minute, []string{"scene-a"})
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestScheduleRetryHoldsJobBack(t *testing.T) {
	store, c := openStore(t)
	ctx := context.Background()
	seed(t, store, "scene-a", "seg-1")
	_, err := store.EnqueueJob(ctx, queue.NewJob{ID: "j1", SegmentID: "seg-1", SceneID: "scene-a"})
	require.NoError(t, err)
	_, err = store.ClaimNext(ctx, time.Minute, nil)
	require.NoError(t, err)

	require.NoError(t, store.ScheduleRetry(ctx, "j1", 1, c.now.Add(2*time.Minute), "provider timeout"))
	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, "provider timeout", job.Error)
	assert.Nil(t, job.LeaseExpiresAt)

	held, err := store.ClaimNext(ctx, time.Minute, nil)
	require.NoError(t, err)
	assert.Nil(t, held)

	c.now = c.now.Add(3 * time.Minute)
	again, err := store.ClaimNext(ctx, time.Minute, nil)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "j1", again.ID)
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	store, c := openStore(t)
	ctx := context.Background()
	seed(t, store, "scene-a", "seg-1")
	_, err := store.EnqueueJob(ctx, queue.NewJob{ID: "j1", SegmentID: "seg-1", SceneID: "scene-a"})
	require.NoError(t, err)
	_, err = store.ClaimNext(ctx, time.Minute, nil)
	require.NoError(t, err)

	c.now = c.now.Add(2 * time.Minute)
	n, err := store.ReclaimExpiredLeases(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUpdatesReportMissingRows(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	status := queue.StatusFailed

	err := store.UpdateJob(ctx, "missing", queue.JobUpdate{Status: &status})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	err = store.UpdateSegment(ctx, "missing", queue.SegmentUpdate{Status: &status})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	job, err := store.GetJob(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestUpdateJobIncrementsAttempts(t *testing.T) {
	store, c := openStore(t)
	ctx := context.Background()
	seed(t, store, "scene-a", "seg-1")
	_, err := store.EnqueueJob(ctx, queue.NewJob{ID: "j1", SegmentID: "seg-1", SceneID: "scene-a"})
	require.NoError(t, err)

	status := queue.StatusProcessing
	started := c.now
	require.NoError(t, store.UpdateJob(ctx, "j1", queue.JobUpdate{Status: &status, IncAttempts: true, StartedAt: &started, ClearNextAt: true}))
	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)
	assert.True(t, job.StartedAt.Equal(started))
}

func TestMergeSceneBibleVersions(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	seed(t, store, "scene-a")

	updates := bible.New("scene-a")
	updates.Characters["mara"] = bible.Character{EntityID: "mara", Name: "Mara", PhysicalDescription: bible.PhysicalDescription{HairColor: "blonde"}}
	merged, err := store.MergeSceneBible(ctx, "scene-a", updates)
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Version)

	again, err := store.MergeSceneBible(ctx, "scene-a", updates)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Version, "no-op merge keeps the version")

	loaded, err := store.GetSceneBible(ctx, "scene-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "blonde", loaded.Characters["mara"].PhysicalDescription.HairColor)
	assert.Equal(t, merged.Fingerprint(), loaded.Fingerprint())
}

func TestRequeueFailed(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	seed(t, store, "scene-a", "seg-1")
	_, err := store.EnqueueJob(ctx, queue.NewJob{ID: "j1", SegmentID: "seg-1", SceneID: "scene-a"})
	require.NoError(t, err)
	failed := queue.StatusFailed
	require.NoError(t, store.UpdateJob(ctx, "j1", queue.JobUpdate{Status: &failed}))

	jobs, err := store.RequeueFailed(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.StatusPending, jobs[0].Status)
	assert.Equal(t, "seg-1", jobs[0].SegmentID)

	_, err = store.RequeueFailed(ctx, jobs[0].ID)
	assert.ErrorIs(t, err, queue.ErrNotFailed)
}
