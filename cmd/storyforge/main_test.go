package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyforge/internal/api"
)

type cliEnv struct {
	baseDir    string
	configPath string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	for _, key := range []string{"STORYFORGE_OPENAI_API_KEY", "STORYFORGE_GEMINI_API_KEY", "STORYFORGE_VIDEO_API_KEY", "STORYFORGE_API_TOKEN"} {
		t.Setenv(key, "")
	}

	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
work_dir = %q
log_dir = %q

[expansion]
provider = "template"

[synthesis]
provider = "testpattern"

[storage]
backend = "local"
local_dir = %q
cdn_url = "http://cdn.test/assets"
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "work"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "assets"),
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliEnv{baseDir: base, configPath: configPath}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("storyforge %s: %v\noutput:\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, out)
	}
}

func TestConfigValidateReportsProviders(t *testing.T) {
	env := setupCLIEnv(t)

	out := env.mustRun(t, "config", "validate")
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Database: sqlite")
	requireContains(t, out, "Expansion: template, synthesis: testpattern, storage: local")
	requireContains(t, out, "Configuration valid")
	if _, err := os.Stat(filepath.Join(env.baseDir, "work")); err != nil {
		t.Fatalf("expected work dir to be created: %v", err)
	}
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	env := setupCLIEnv(t)
	target := filepath.Join(env.baseDir, "fresh", "config.toml")

	out := env.mustRun(t, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration to "+target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	env.mustRun(t, "config", "init", "--path", target, "--overwrite")
}

func TestSceneEnqueueAndJobsFlow(t *testing.T) {
	env := setupCLIEnv(t)

	requireContains(t, env.mustRun(t, "scene", "create", "--id", "scene-1", "The", "Long", "Road"), "Created scene scene-1 (The Long Road)")
	requireContains(t, env.mustRun(t, "enqueue", "scene-1", "--segment-id", "seg-a", "A rider crests the hill"), "for segment seg-a (#0)")
	requireContains(t, env.mustRun(t, "enqueue", "scene-1", "--segment-id", "seg-b", "--priority", "5", "She dismounts"), "for segment seg-b (#1)")

	var listed api.JobListResponse
	if err := json.Unmarshal([]byte(env.mustRun(t, "jobs", "list", "--json")), &listed); err != nil {
		t.Fatalf("decode jobs json: %v", err)
	}
	if len(listed.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(listed.Jobs))
	}
	for _, job := range listed.Jobs {
		if job.Status != "PENDING" || job.SceneID != "scene-1" {
			t.Fatalf("unexpected job %+v", job)
		}
	}

	jobID := listed.Jobs[0].ID
	out := env.mustRun(t, "jobs", "show", jobID)
	requireContains(t, out, jobID)
	requireContains(t, out, "PENDING")

	out = env.mustRun(t, "jobs", "list", "--status", "failed")
	requireContains(t, out, "No jobs")

	out = env.mustRun(t, "jobs", "stats")
	requireContains(t, out, "PENDING")
	requireContains(t, out, "2")
	requireContains(t, out, "waiting for retry")

	out = env.mustRun(t, "jobs", "retry")
	requireContains(t, out, "No failed jobs to retry")

	var scene api.Scene
	if err := json.Unmarshal([]byte(env.mustRun(t, "scene", "show", "scene-1", "--json")), &scene); err != nil {
		t.Fatalf("decode scene json: %v", err)
	}
	if len(scene.Segments) != 2 || scene.Segments[0].ID != "seg-a" || scene.Segments[1].OrderIndex != 1 {
		t.Fatalf("unexpected segments %+v", scene.Segments)
	}

	requireContains(t, env.mustRun(t, "scene", "list"), "scene-1")
}

func TestEnqueueUnknownSceneFails(t *testing.T) {
	env := setupCLIEnv(t)
	_, err := env.run(t, "enqueue", "missing", "prompt")
	if err == nil || !strings.Contains(err.Error(), "scene missing not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestJobsListRejectsUnknownStatus(t *testing.T) {
	env := setupCLIEnv(t)
	if _, err := env.run(t, "jobs", "list", "--status", "sleeping"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestBibleImportAndShow(t *testing.T) {
	env := setupCLIEnv(t)
	env.mustRun(t, "scene", "create", "--id", "scene-1", "Harbor")

	seed := filepath.Join(env.baseDir, "bible.yaml")
	yamlDoc := `characters:
  mara:
    name: Mara
    physicalDescription:
      hairColor: red
locations:
  docks:
    name: The Docks
    description: fog over wet planks
`
	if err := os.WriteFile(seed, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	out := env.mustRun(t, "bible", "import", "scene-1", seed)
	requireContains(t, out, "1 characters, 1 locations, 0 objects")

	out = env.mustRun(t, "bible", "show", "scene-1")
	requireContains(t, out, "hairColor: red")
	requireContains(t, out, "entityId: mara")

	out = env.mustRun(t, "bible", "show", "scene-1", "--json")
	requireContains(t, out, `"name": "The Docks"`)

	if _, err := env.run(t, "bible", "show", "nope"); err == nil {
		t.Fatal("expected missing bible to fail")
	}
}
