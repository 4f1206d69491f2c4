package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

// fakeFFmpeg writes the playlist and one segment a real encode would produce.
func fakeFFmpeg(calls *[][]string) CommandRunner {
	return func(ctx context.Context, name string, args ...string) error {
		*calls = append(*calls, append([]string{name}, args...))
		dest := args[len(args)-1]
		if err := os.WriteFile(dest, []byte("data"), 0o644); err != nil {
			return err
		}
		if strings.HasSuffix(dest, ".m3u8") {
			seg := strings.TrimSuffix(dest, ".m3u8") + "_000.ts"
			return os.WriteFile(seg, []byte("ts"), 0o644)
		}
		return nil
	}
}

func fakeProbe(duration string) OutputRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"streams":[{"codec_type":"video","width":1280,"height":720}],"format":{"duration":"` + duration + `"}}`), nil
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestProduceVariantsWritesLadder(t *testing.T) {
	var calls [][]string
	f := New(config.Default().Transcode, WithCommandRunner(fakeFFmpeg(&calls)), WithProbeRunner(fakeProbe("8.04")))
	outDir := filepath.Join(t.TempDir(), "hls")

	out, err := f.ProduceVariants(context.Background(), writeSource(t), outDir)
	if err != nil {
		t.Fatalf("ProduceVariants: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected one encode per rung, got %d", len(calls))
	}
	joined := strings.Join(calls[0], " ")
	for _, want := range []string{"-b:v 2500k", "-bufsize 5000k", "scale=1280:720", "-hls_time 4", "720p_%03d.ts"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("720p args missing %q: %s", want, joined)
		}
	}
	if out.Duration != 8.04 {
		t.Fatalf("unexpected duration %v", out.Duration)
	}
	if len(out.Files) != 5 {
		t.Fatalf("expected master + 2 playlists + 2 segments, got %v", out.Files)
	}
	master, err := os.ReadFile(out.Master)
	if err != nil {
		t.Fatalf("read master: %v", err)
	}
	if string(master) != BuildMasterPlaylist(DefaultLadder) {
		t.Fatalf("unexpected master playlist:\n%s", master)
	}
}

func TestBuildMasterPlaylist(t *testing.T) {
	want := "#EXTM3U\n#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n720p.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080\n1080p.m3u8\n"
	if got := BuildMasterPlaylist(DefaultLadder); got != want {
		t.Fatalf("master playlist mismatch:\n%s", got)
	}
}

func TestProduceVariantsEncodeFailureIsExternalTool(t *testing.T) {
	failing := func(ctx context.Context, name string, args ...string) error { return errors.New("exit status 1") }
	f := New(config.Default().Transcode, WithCommandRunner(failing))
	_, err := f.ProduceVariants(context.Background(), writeSource(t), t.TempDir())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if services.IsPermanent(err) {
		t.Fatal("tool failures should be retryable")
	}
}

func TestProduceVariantsMissingInput(t *testing.T) {
	f := New(config.Default().Transcode)
	_, err := f.ProduceVariants(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), t.TempDir())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestThumbnailArgs(t *testing.T) {
	var calls [][]string
	f := New(config.Default().Transcode, WithCommandRunner(fakeFFmpeg(&calls)))
	dest := filepath.Join(t.TempDir(), "thumb", "thumbnail.jpg")
	if err := f.Thumbnail(context.Background(), "in.mp4", dest); err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	joined := strings.Join(calls[0], " ")
	if !strings.Contains(joined, "-ss 1.000") || !strings.Contains(joined, "scale=480:-1") {
		t.Fatalf("unexpected thumbnail args: %s", joined)
	}
}

func TestProbeDurationFallsBackToStream(t *testing.T) {
	r := ProbeResult{Streams: []ProbeStream{{CodecType: "audio"}, {CodecType: "video", Duration: "6.5"}}}
	if r.DurationSeconds() != 6.5 {
		t.Fatalf("expected stream duration, got %v", r.DurationSeconds())
	}
	if (ProbeResult{Format: ProbeFormat{Duration: "bad"}}).DurationSeconds() != 0 {
		t.Fatal("unparseable duration should be zero")
	}
}
