package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/expand"
	"storyforge/internal/progress"
	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/storage"
	"storyforge/internal/testsupport"
	"storyforge/internal/transcode"
	"storyforge/internal/videogen"
	"storyforge/internal/workflow"
)

type countingExpander struct {
	inner expand.Provider
	calls atomic.Int32
	last  expand.Request
	mu    sync.Mutex
}

func (e *countingExpander) Expand(ctx context.Context, req expand.Request) (expand.Result, error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.last = req
	e.mu.Unlock()
	return e.inner.Expand(ctx, req)
}

type scriptExpander struct {
	script string
}

func (e scriptExpander) Expand(context.Context, expand.Request) (expand.Result, error) {
	return expand.Result{FullScript: e.script, VideoPrompt: "a portrait", DurationEstimate: 6}, nil
}

// fakeSynth writes a placeholder clip. It fails with a transient error for
// the first failFirst calls.
type fakeSynth struct {
	failFirst int32
	calls     atomic.Int32
	lastReq   videogen.Request
	mu        sync.Mutex
}

func (s *fakeSynth) Generate(_ context.Context, req videogen.Request) (videogen.Result, error) {
	n := s.calls.Add(1)
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()
	if n <= s.failFirst {
		return videogen.Result{}, services.Wrap(services.ErrTransient, "synthesize", "poll", "provider busy", nil)
	}
	path := filepath.Join(req.OutputDir, videogen.SourceFile)
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		return videogen.Result{}, err
	}
	return videogen.Result{VideoPath: path, Duration: float64(req.DurationSeconds), Width: 1280, Height: 720, Model: "fake"}, nil
}

type fakeTranscoder struct {
	calls atomic.Int32
}

func (f *fakeTranscoder) ProduceVariants(_ context.Context, input, outDir string) (transcode.Output, error) {
	f.calls.Add(1)
	if err := os.MkdirAll(filepath.Join(outDir, "720p"), 0o755); err != nil {
		return transcode.Output{}, err
	}
	master := filepath.Join(outDir, transcode.MasterPlaylist)
	playlist := filepath.Join(outDir, "720p", "index.m3u8")
	chunk := filepath.Join(outDir, "720p", "segment_000.ts")
	for _, p := range []string{master, playlist, chunk} {
		if err := os.WriteFile(p, []byte("#EXTM3U\n"), 0o644); err != nil {
			return transcode.Output{}, err
		}
	}
	return transcode.Output{
		Dir:       outDir,
		Master:    master,
		Playlists: []string{playlist},
		Files:     []string{chunk, playlist, master},
	}, nil
}

func (f *fakeTranscoder) Thumbnail(_ context.Context, _ string, dest string) error {
	return os.WriteFile(dest, []byte("jpg"), 0o644)
}

type countingUploader struct {
	inner workflow.Uploader
	calls atomic.Int32
}

func (u *countingUploader) UploadSegment(ctx context.Context, sceneID, segmentID string, assets storage.SegmentAssets) (storage.SegmentURLs, error) {
	u.calls.Add(1)
	return u.inner.UploadSegment(ctx, sceneID, segmentID, assets)
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Publish(_ context.Context, evt progress.Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Event, len(r.events))
	copy(out, r.events)
	return out
}

type harness struct {
	cfg         *config.Config
	store       *queue.Store
	expander    *countingExpander
	synth       *fakeSynth
	transcoder  *fakeTranscoder
	uploader    *countingUploader
	progress    *recorder
	collab      workflow.Collaborators
	orch        *workflow.Orchestrator
	clockOffset time.Duration
	clockMu     sync.Mutex
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	local, err := storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.CDNURL)
	if err != nil {
		t.Fatalf("storage.NewLocal: %v", err)
	}
	h := &harness{
		cfg:        cfg,
		store:      store,
		expander:   &countingExpander{inner: expand.TemplateProvider{}},
		synth:      &fakeSynth{},
		transcoder: &fakeTranscoder{},
		uploader:   &countingUploader{inner: storage.Publisher{Backend: local, Concurrency: 2}},
		progress:   &recorder{},
	}
	store.SetClock(h.now)
	h.collab = workflow.Collaborators{
		Repository:  store,
		Expander:    h.expander,
		Synthesizer: h.synth,
		Transcoder:  h.transcoder,
		Uploader:    h.uploader,
		Progress:    h.progress,
	}
	h.orch = h.newOrchestrator(t)
	return h
}

func (h *harness) newOrchestrator(t *testing.T) *workflow.Orchestrator {
	t.Helper()
	orch, err := workflow.NewOrchestrator(h.cfg, h.collab, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

func (h *harness) now() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return time.Now().Add(h.clockOffset)
}

// advance moves the shared clock past any retry backoff.
func (h *harness) advance(d time.Duration) {
	h.clockMu.Lock()
	h.clockOffset += d
	h.clockMu.Unlock()
}

func (h *harness) manager(opts ...workflow.ManagerOption) *workflow.Manager {
	opts = append([]workflow.ManagerOption{workflow.WithClock(h.now)}, opts...)
	return workflow.NewManager(h.cfg, h.store, h.orch, nil, opts...)
}

func (h *harness) job(t *testing.T, id string) *queue.Job {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("GetJob(%s) = %v, %v", id, job, err)
	}
	return job
}

func (h *harness) segment(t *testing.T, id string) *queue.Segment {
	t.Helper()
	seg, err := h.store.GetSegment(context.Background(), id)
	if err != nil || seg == nil {
		t.Fatalf("GetSegment(%s) = %v, %v", id, seg, err)
	}
	return seg
}
