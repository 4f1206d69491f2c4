package videogen

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"storyforge/internal/services"
)

// TestPatternProvider renders an ffmpeg test card with a tone. The prompt is
// ignored apart from validation.
type TestPatternProvider struct {
	FFmpeg string
	// Run replaces exec for tests.
	Run func(ctx context.Context, name string, args ...string) error
}

// Generate writes OutputDir/source.mp4.
func (p TestPatternProvider) Generate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "synthesize", "generate", "empty prompt", nil)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	duration := ClampDuration(req.DurationSeconds)
	width, height := dimensions(req.AspectRatio)
	// Rendered at half size; the transcode ladder scales up.
	w, h := width/2, height/2
	dest := filepath.Join(req.OutputDir, SourceFile)
	d := strconv.Itoa(duration)
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", fmt.Sprintf("testsrc2=size=%dx%d:rate=24:duration=%s", w, h, d),
		"-f", "lavfi", "-i", "sine=frequency=440:duration=" + d,
		"-shortest",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		dest,
	}
	binary := strings.TrimSpace(p.FFmpeg)
	if binary == "" {
		binary = "ffmpeg"
	}
	run := p.Run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) error {
			out, err := exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
			if err != nil {
				return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
			}
			return nil
		}
	}
	if err := run(ctx, binary, args...); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "synthesize", "test pattern", "", err)
	}
	return Result{VideoPath: dest, Duration: float64(duration), Width: w, Height: h, Model: "testpattern"}, nil
}
