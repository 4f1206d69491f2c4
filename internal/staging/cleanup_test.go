package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storyforge/internal/logging"
)

func makeDir(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(filepath.Join(path, "source.mp4"), make([]byte, 10), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestPrepareWipesPreviousAttempt(t *testing.T) {
	work := t.TempDir()
	dir, err := Prepare(work, "j1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "leftover"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	again, err := Prepare(work, "j1")
	if err != nil {
		t.Fatalf("Prepare again: %v", err)
	}
	if again != dir {
		t.Fatalf("expected stable dir, got %s vs %s", again, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "leftover")); !os.IsNotExist(err) {
		t.Fatal("leftover file should be gone")
	}
	if err := Remove(work, "j1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("dir should be removed")
	}
}

func TestPrepareRejectsBadIDs(t *testing.T) {
	for _, id := range []string{"", "  ", "../x", `a\b`} {
		if _, err := Prepare(t.TempDir(), id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
	if _, err := Prepare("", "j1"); err == nil {
		t.Fatal("expected error for empty work dir")
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldInactiveJobs(t *testing.T) {
	work := t.TempDir()
	old := JobDir(work, "old")
	busy := JobDir(work, "busy")
	recent := JobDir(work, "recent")
	foreign := filepath.Join(work, "not-a-job")
	makeDir(t, old, 2*time.Hour)
	makeDir(t, busy, 2*time.Hour)
	makeDir(t, recent, time.Minute)
	makeDir(t, foreign, 2*time.Hour)

	result := CleanStale(context.Background(), work, time.Hour, map[string]struct{}{"busy": {}}, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("expected only %s removed, got %v", old, result.Removed)
	}
	if result.FreedBytes != 10 {
		t.Fatalf("expected 10 bytes freed, got %d", result.FreedBytes)
	}
	for _, keep := range []string{busy, recent, foreign} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("%s should still exist", keep)
		}
	}
}
