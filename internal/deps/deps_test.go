package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" || !results[2].Optional {
		t.Fatalf("unexpected blank result: %#v", results[2])
	}
}

func TestResolveBinaryUsesPath(t *testing.T) {
	binDir := t.TempDir()
	want := writeStub(t, binDir, "ffmpeg-stub")
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	if got := ResolveBinary(" ffmpeg-stub "); got != want {
		t.Fatalf("ResolveBinary = %q, want %q", got, want)
	}
	if got := ResolveBinary("not-a-real-tool"); got != "not-a-real-tool" {
		t.Fatalf("unresolved command should pass through, got %q", got)
	}
	if got := ResolveBinary(""); got != "" {
		t.Fatalf("blank command should stay blank, got %q", got)
	}
}

func TestMediaRequirementsReportsBothTools(t *testing.T) {
	results := CheckBinaries(MediaRequirements("missing-ffmpeg", "missing-ffprobe"))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "FFmpeg" || results[1].Name != "FFprobe" {
		t.Fatalf("unexpected names: %s, %s", results[0].Name, results[1].Name)
	}
	for _, r := range results {
		if r.Available {
			t.Fatalf("%s should be unavailable", r.Name)
		}
	}
}
