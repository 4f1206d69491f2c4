package daemon_test

import (
	"context"
	"testing"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/daemon"
	"storyforge/internal/expand"
	"storyforge/internal/logging"
	"storyforge/internal/progress"
	"storyforge/internal/queue"
	"storyforge/internal/storage"
	"storyforge/internal/testsupport"
	"storyforge/internal/transcode"
	"storyforge/internal/videogen"
	"storyforge/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config, store *queue.Store) *daemon.Daemon {
	t.Helper()
	backend, err := storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.CDNURL)
	if err != nil {
		t.Fatalf("storage.NewLocal: %v", err)
	}
	hub := progress.NewHub(16)
	orch, err := workflow.NewOrchestrator(cfg, workflow.Collaborators{
		Repository:  store,
		Expander:    expand.TemplateProvider{},
		Synthesizer: videogen.TestPatternProvider{FFmpeg: cfg.Transcode.FFmpegBinary},
		Transcoder:  transcode.New(cfg.Transcode),
		Uploader:    storage.Publisher{Backend: backend},
		Progress:    hub,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	mgr := workflow.NewManager(cfg, store, orch, logging.NewNop())
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr, hub)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, store)
	t.Cleanup(func() { d.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path = %q, want %q", status.LockFilePath, cfg.LockPath())
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondWorkerIsRejectedByLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	first := newDaemon(t, cfg, store)
	second := newDaemon(t, cfg, store)
	t.Cleanup(func() {
		first.Stop()
		second.Stop()
	})

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected the lock to reject a second worker")
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}
