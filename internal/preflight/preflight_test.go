package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"storyforge/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckSynthesisAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if result := CheckSynthesisAPI(context.Background(), srv.URL, "good-key"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckSynthesisAPI(context.Background(), srv.URL, "bad-key"); result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if result := CheckSynthesisAPI(context.Background(), "", "key"); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckLLMMissingKey(t *testing.T) {
	if CheckLLM(context.Background(), "LLM", config.Expansion{}).Passed {
		t.Fatal("expected failure without api key")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_OfflineProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Storage.LocalDir = t.TempDir()
	cfg.Transcode.FFmpegBinary = "definitely-missing-ffmpeg"
	cfg.Transcode.FFprobeBinary = "definitely-missing-ffprobe"
	cfg.Expansion.Provider = config.ExpansionTemplate
	cfg.Synthesis.Provider = config.SynthesisTestPattern

	results := RunAll(context.Background(), &cfg)
	// work, data, assets, ffmpeg, ffprobe
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %+v", len(results), results)
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected the two missing binaries to fail, got %+v", failed)
	}
	for _, r := range failed {
		if r.Name != "FFmpeg" && r.Name != "FFprobe" {
			t.Errorf("unexpected failure %q: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesSynthesisCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Storage.LocalDir = t.TempDir()
	cfg.Expansion.Provider = config.ExpansionTemplate
	cfg.Synthesis.Provider = config.SynthesisHTTP
	cfg.Synthesis.BaseURL = srv.URL
	cfg.Synthesis.APIKey = "test"

	found := false
	for _, r := range RunAll(context.Background(), &cfg) {
		if r.Name == "Synthesis API" {
			found = true
			if !r.Passed {
				t.Errorf("synthesis check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected synthesis check in results")
	}
}
