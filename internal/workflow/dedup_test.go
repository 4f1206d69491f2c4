package workflow_test

import (
	"context"
	"testing"

	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/testsupport"
	"storyforge/internal/workflow"
)

func TestDedupGuard(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedJob(t, store, "j1", "scene-a", "s1", "A hero enters")
	guard := workflow.NewDedupGuard(store)

	ok, err := guard.ShouldProcess(ctx, "j1", 0)
	if err != nil || !ok {
		t.Fatalf("fresh job should process, got %v, %v", ok, err)
	}
	guard.MarkProcessed("j1", 0)
	if v, _ := guard.Check(ctx, "j1", 0); v != workflow.VerdictHandled {
		t.Fatalf("same attempt should be handled, got %s", v)
	}
	if v, _ := guard.Check(ctx, "j1", 1); v != workflow.VerdictProcess {
		t.Fatalf("next attempt should process, got %s", v)
	}

	if err := store.UpdateJob(ctx, "j1", queue.JobUpdate{Status: queue.Ptr(queue.StatusCompleted)}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if v, _ := guard.Check(ctx, "j1", 1); v != workflow.VerdictCompleted {
		t.Fatalf("completed job should be skipped, got %s", v)
	}

	if _, err := guard.Check(ctx, "nope", 0); !services.IsPermanent(err) {
		t.Fatalf("unknown job should be a permanent error, got %v", err)
	}
}
