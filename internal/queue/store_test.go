package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyforge/internal/bible"
	"storyforge/internal/queue"
	"storyforge/internal/testsupport"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func openStore(t *testing.T) (*queue.Store, *fakeClock) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)
	return store, clock
}

func TestCreateAndFetchRecords(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	fx := testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "A hero enters")
	if fx.Job.Status != queue.StatusPending || fx.Job.Attempt != 0 || fx.Job.MaxAttempts != 3 {
		t.Fatalf("unexpected job defaults: %#v", fx.Job)
	}
	if fx.Segment.Status != queue.StatusPending || fx.Segment.HasScript() {
		t.Fatalf("unexpected segment defaults: %#v", fx.Segment)
	}

	scene, err := store.GetScene(ctx, "scene-1")
	if err != nil || scene == nil || scene.Title != "Scene scene-1" {
		t.Fatalf("GetScene = %#v, %v", scene, err)
	}

	missing, err := store.GetJob(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing job, got %#v, %v", missing, err)
	}
	missingSeg, err := store.GetSegment(ctx, "nope")
	if err != nil || missingSeg != nil {
		t.Fatalf("expected nil, nil for missing segment, got %#v, %v", missingSeg, err)
	}
}

func TestSegmentOrderIndexUniquePerScene(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	testsupport.NewScene(t, store, "scene-1", "One")
	testsupport.NewSegment(t, store, "scene-1", "s1", 0, "first")
	if _, err := store.CreateSegment(ctx, queue.Segment{SceneID: "scene-1", OrderIndex: 0, Prompt: "dup"}); err == nil {
		t.Fatal("expected duplicate order index to be rejected")
	}

	next, err := store.NextOrderIndex(ctx, "scene-1")
	if err != nil || next != 1 {
		t.Fatalf("NextOrderIndex = %d, %v", next, err)
	}
}

func TestGetSegmentsBeforeReturnsEarlierSegmentsInOrder(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	testsupport.NewScene(t, store, "scene-1", "One")
	testsupport.NewScene(t, store, "scene-2", "Two")
	testsupport.NewSegment(t, store, "scene-1", "s2", 2, "third")
	testsupport.NewSegment(t, store, "scene-1", "s0", 0, "first")
	testsupport.NewSegment(t, store, "scene-1", "s1", 1, "second")
	testsupport.NewSegment(t, store, "scene-2", "other", 0, "elsewhere")

	before, err := store.GetSegmentsBefore(ctx, "scene-1", 2)
	if err != nil {
		t.Fatalf("GetSegmentsBefore: %v", err)
	}
	if len(before) != 2 || before[0].ID != "s0" || before[1].ID != "s1" {
		t.Fatalf("unexpected segments: %#v", before)
	}
}

func TestUpdateJobAppliesOnlySetFields(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	fx := testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "prompt")

	if err := store.UpdateJob(ctx, fx.Job.ID, queue.JobUpdate{
		Status:      queue.Ptr(queue.StatusProcessing),
		Progress:    queue.Ptr(25.0),
		Stage:       queue.Ptr("expand"),
		IncAttempts: true,
	}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if err := store.UpdateJob(ctx, fx.Job.ID, queue.JobUpdate{Progress: queue.Ptr(40.0)}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	job, err := store.GetJob(ctx, fx.Job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != queue.StatusProcessing || job.Progress != 40 || job.Stage != "expand" || job.Attempts != 1 {
		t.Fatalf("unexpected job after updates: %#v", job)
	}

	if err := store.UpdateJob(ctx, "missing", queue.JobUpdate{Progress: queue.Ptr(1.0)}); err == nil {
		t.Fatal("expected error updating missing job")
	}
}

func TestUpdateSegmentPersistsArtifacts(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	fx := testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "prompt")

	if err := store.UpdateSegment(ctx, fx.Segment.ID, queue.SegmentUpdate{
		Status:         queue.Ptr(queue.StatusCompleted),
		ExpandedScript: queue.Ptr("INT. ROOM - DAY"),
		VideoURL:       queue.Ptr("http://cdn/video.mp4"),
		Duration:       queue.Ptr(8.0),
		ContinuityHash: queue.Ptr("abc"),
	}); err != nil {
		t.Fatalf("UpdateSegment: %v", err)
	}
	seg, err := store.GetSegment(ctx, fx.Segment.ID)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if seg.Status != queue.StatusCompleted || seg.VideoURL != "http://cdn/video.mp4" || seg.Duration != 8 || !seg.HasScript() {
		t.Fatalf("unexpected segment: %#v", seg)
	}
}

func TestEnqueueRejectsSecondActiveJobForSegment(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	fx := testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "prompt")

	_, err := store.EnqueueJob(ctx, queue.NewJob{SegmentID: fx.Segment.ID, SceneID: fx.Scene.ID})
	if !errors.Is(err, queue.ErrActiveJob) {
		t.Fatalf("expected ErrActiveJob, got %v", err)
	}
	if _, err := store.EnqueueJob(ctx, queue.NewJob{SceneID: "scene-1"}); err == nil {
		t.Fatal("expected validation error for missing segment id")
	}
}

func TestClaimNextOrdersByPriorityThenSegmentOrder(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	testsupport.NewScene(t, store, "a", "A")
	testsupport.NewScene(t, store, "b", "B")
	segA1 := testsupport.NewSegment(t, store, "a", "a1", 1, "later")
	segB0 := testsupport.NewSegment(t, store, "b", "b0", 0, "early")
	testsupport.NewJob(t, store, "job-a1", segA1, 3)
	testsupport.NewJob(t, store, "job-b0", segB0, 3)
	segA0 := testsupport.NewSegment(t, store, "a", "a0", 0, "urgent")
	if _, err := store.EnqueueJob(ctx, queue.NewJob{ID: "job-a0", SegmentID: segA0.ID, SceneID: "a", Priority: 5}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	first, err := store.ClaimNext(ctx, time.Minute, nil)
	if err != nil || first == nil || first.ID != "job-a0" {
		t.Fatalf("expected high priority job first, got %v, %v", first, err)
	}
	if first.LeaseExpiresAt == nil {
		t.Fatal("expected claimed job to carry a lease")
	}

	// Scene a is leased, so its remaining job is skipped.
	second, err := store.ClaimNext(ctx, time.Minute, nil)
	if err != nil || second == nil || second.ID != "job-b0" {
		t.Fatalf("expected job-b0 second, got %v, %v", second, err)
	}

	third, err := store.ClaimNext(ctx, time.Minute, nil)
	if err != nil || third != nil {
		t.Fatalf("expected nothing claimable, got %v, %v", third, err)
	}
}

func TestClaimNextHonoursExcludedScenes(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "prompt")

	job, err := store.ClaimNext(ctx, time.Minute, []string{"scene-1"})
	if err != nil || job != nil {
		t.Fatalf("expected excluded scene to be skipped, got %v, %v", job, err)
	}
}

func TestExpiredLeaseIsRedelivered(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "prompt")

	if job, err := store.ClaimNext(ctx, time.Minute, nil); err != nil || job == nil {
		t.Fatalf("ClaimNext: %v, %v", job, err)
	}
	clock.Advance(30 * time.Second)
	if err := store.ExtendLease(ctx, "j1", time.Minute); err != nil {
		t.Fatalf("ExtendLease: %v", err)
	}
	clock.Advance(45 * time.Second)
	if job, _ := store.ClaimNext(ctx, time.Minute, nil); job != nil {
		t.Fatal("expected renewed lease to block redelivery")
	}

	clock.Advance(time.Minute)
	reclaimed, err := store.ReclaimExpiredLeases(ctx)
	if err != nil || reclaimed != 1 {
		t.Fatalf("ReclaimExpiredLeases = %d, %v", reclaimed, err)
	}
	job, err := store.ClaimNext(ctx, time.Minute, nil)
	if err != nil || job == nil || job.ID != "j1" {
		t.Fatalf("expected redelivery of j1, got %v, %v", job, err)
	}
}

func TestScheduleRetryDelaysNextClaim(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "prompt")

	if _, err := store.ClaimNext(ctx, time.Minute, nil); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := store.ScheduleRetry(ctx, "j1", 1, clock.Now().Add(2*time.Minute), "provider timeout"); err != nil {
		t.Fatalf("ScheduleRetry: %v", err)
	}

	job, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != queue.StatusProcessing || job.Attempt != 1 || job.LeaseExpiresAt != nil || job.Error != "provider timeout" {
		t.Fatalf("unexpected rescheduled job: %#v", job)
	}

	if got, _ := store.ClaimNext(ctx, time.Minute, nil); got != nil {
		t.Fatal("expected retry to be gated by next_attempt_at")
	}
	health, err := store.Health(ctx)
	if err != nil || health.Waiting != 1 || health.Processing != 1 {
		t.Fatalf("Health = %#v, %v", health, err)
	}

	clock.Advance(3 * time.Minute)
	got, err := store.ClaimNext(ctx, time.Minute, nil)
	if err != nil || got == nil || got.Attempt != 1 {
		t.Fatalf("expected attempt 1 to be claimable, got %v, %v", got, err)
	}
}

func TestRequeueFailedCreatesFreshJob(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	fx := testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "prompt")

	if _, err := store.RequeueFailed(ctx, "j1"); !errors.Is(err, queue.ErrNotFailed) {
		t.Fatalf("expected ErrNotFailed for pending job, got %v", err)
	}

	if err := store.UpdateJob(ctx, "j1", queue.JobUpdate{Status: queue.Ptr(queue.StatusFailed), Error: queue.Ptr("boom")}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if err := store.UpdateSegment(ctx, fx.Segment.ID, queue.SegmentUpdate{Status: queue.Ptr(queue.StatusFailed)}); err != nil {
		t.Fatalf("UpdateSegment: %v", err)
	}

	jobs, err := store.RequeueFailed(ctx)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("RequeueFailed = %v, %v", jobs, err)
	}
	if jobs[0].ID == "j1" || jobs[0].Status != queue.StatusPending || jobs[0].SegmentID != "s1" {
		t.Fatalf("unexpected requeued job: %#v", jobs[0])
	}

	old, _ := store.GetJob(ctx, "j1")
	if old.Status != queue.StatusFailed {
		t.Fatalf("failed job must stay terminal, got %s", old.Status)
	}
	seg, _ := store.GetSegment(ctx, "s1")
	if seg.Status != queue.StatusPending {
		t.Fatalf("expected segment reset to pending, got %s", seg.Status)
	}

	again, err := store.RequeueFailed(ctx)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected no further requeues, got %v, %v", again, err)
	}
}

func TestMergeSceneBibleIsAdditiveAndVersioned(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	testsupport.NewScene(t, store, "scene-1", "One")

	if b, err := store.GetSceneBible(ctx, "scene-1"); err != nil || b != nil {
		t.Fatalf("expected no bible yet, got %#v, %v", b, err)
	}

	first := bible.New("")
	first.Characters["alice"] = bible.Character{Name: "Alice", PhysicalDescription: bible.PhysicalDescription{HairColor: "blonde"}}
	merged, err := store.MergeSceneBible(ctx, "scene-1", first)
	if err != nil {
		t.Fatalf("MergeSceneBible: %v", err)
	}
	if merged.Version != 1 {
		t.Fatalf("expected version 1, got %d", merged.Version)
	}

	second := bible.New("")
	second.Locations["cafe"] = bible.Location{Name: "Cafe"}
	merged, err = store.MergeSceneBible(ctx, "scene-1", second)
	if err != nil {
		t.Fatalf("MergeSceneBible: %v", err)
	}

	stored, err := store.GetSceneBible(ctx, "scene-1")
	if err != nil {
		t.Fatalf("GetSceneBible: %v", err)
	}
	if stored.Version != 2 || merged.Version != 2 {
		t.Fatalf("expected version 2, got stored=%d merged=%d", stored.Version, merged.Version)
	}
	if _, ok := stored.Characters["alice"]; !ok {
		t.Fatal("merge dropped an existing character")
	}
	if _, ok := stored.Locations["cafe"]; !ok {
		t.Fatal("merge did not add the new location")
	}

	unchanged, err := store.MergeSceneBible(ctx, "scene-1", second)
	if err != nil || unchanged.Version != 2 {
		t.Fatalf("no-op merge should keep version, got %v, %v", unchanged, err)
	}
}

func TestPutSceneBibleBumpsVersion(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	testsupport.NewScene(t, store, "scene-1", "One")

	b := bible.New("scene-1")
	b.Rules = append(b.Rules, bible.Rule{ID: "tone", Rule: "Noir lighting"})
	stored, err := store.PutSceneBible(ctx, b)
	if err != nil || stored.Version != 1 {
		t.Fatalf("PutSceneBible = %v, %v", stored, err)
	}
	stored, err = store.PutSceneBible(ctx, b)
	if err != nil || stored.Version != 2 {
		t.Fatalf("second PutSceneBible = %v, %v", stored, err)
	}
}

func TestCheckHealthReportsSchema(t *testing.T) {
	store, _ := openStore(t)
	testsupport.SeedJob(t, store, "j1", "scene-1", "s1", "prompt")

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck || health.SchemaVersion != 1 || health.TotalJobs != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}
}
