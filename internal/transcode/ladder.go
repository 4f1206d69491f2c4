package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

// Variant is one rung of the streaming ladder.
type Variant struct {
	Name        string
	Width       int
	Height      int
	BitrateKbps int
}

// Bandwidth is the BANDWIDTH attribute written to the master playlist.
func (v Variant) Bandwidth() int { return v.BitrateKbps * 1000 }

// DefaultLadder is 720p at 2500k and 1080p at 5000k.
var DefaultLadder = []Variant{
	{Name: "720p", Width: 1280, Height: 720, BitrateKbps: 2500},
	{Name: "1080p", Width: 1920, Height: 1080, BitrateKbps: 5000},
}

// MasterPlaylist is the file name of the top-level playlist.
const MasterPlaylist = "master.m3u8"

// Output lists what ProduceVariants wrote.
type Output struct {
	Dir       string
	Master    string
	Playlists []string
	// Files holds every file under Dir, sorted, master included.
	Files []string
	// Duration is the source duration in seconds, zero when unknown.
	Duration float64
}

// CommandRunner runs a command for its side effects.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, lastLines(string(output), 5))
	}
	return nil
}

// FFmpeg produces HLS ladders and thumbnails.
type FFmpeg struct {
	ffmpeg          string
	ffprobe         string
	segmentSeconds  int
	thumbnailOffset float64
	thumbnailWidth  int
	ladder          []Variant
	run             CommandRunner
	output          OutputRunner
}

// Option customizes FFmpeg.
type Option func(*FFmpeg)

// WithCommandRunner replaces the ffmpeg executor.
func WithCommandRunner(r CommandRunner) Option {
	return func(f *FFmpeg) {
		if r != nil {
			f.run = r
		}
	}
}

// WithProbeRunner replaces the ffprobe executor.
func WithProbeRunner(r OutputRunner) Option {
	return func(f *FFmpeg) {
		if r != nil {
			f.output = r
		}
	}
}

// WithLadder overrides DefaultLadder.
func WithLadder(ladder []Variant) Option {
	return func(f *FFmpeg) {
		if len(ladder) > 0 {
			f.ladder = ladder
		}
	}
}

// New builds an FFmpeg transcoder from config.
func New(cfg config.Transcode, opts ...Option) *FFmpeg {
	f := &FFmpeg{
		ffmpeg:          strings.TrimSpace(cfg.FFmpegBinary),
		ffprobe:         strings.TrimSpace(cfg.FFprobeBinary),
		segmentSeconds:  cfg.SegmentSeconds,
		thumbnailOffset: cfg.ThumbnailOffsetSeconds,
		thumbnailWidth:  cfg.ThumbnailWidth,
		ladder:          DefaultLadder,
		run:             defaultCommandRunner,
		output:          defaultOutputRunner,
	}
	if f.ffmpeg == "" {
		f.ffmpeg = "ffmpeg"
	}
	if f.ffprobe == "" {
		f.ffprobe = "ffprobe"
	}
	if f.segmentSeconds <= 0 {
		f.segmentSeconds = 4
	}
	if f.thumbnailWidth <= 0 {
		f.thumbnailWidth = 480
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ProduceVariants encodes input into every ladder rung under outDir and writes
// the master playlist.
func (f *FFmpeg) ProduceVariants(ctx context.Context, input, outDir string) (Output, error) {
	if _, err := os.Stat(input); err != nil {
		return Output{}, services.Wrap(services.ErrValidation, "transcode", "stat input", input, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create hls dir: %w", err)
	}
	out := Output{Dir: outDir, Master: filepath.Join(outDir, MasterPlaylist)}
	for _, v := range f.ladder {
		playlist := filepath.Join(outDir, v.Name+".m3u8")
		if err := f.run(ctx, f.ffmpeg, f.variantArgs(input, outDir, v)...); err != nil {
			return Output{}, services.Wrap(services.ErrExternalTool, "transcode", "encode "+v.Name, "", err)
		}
		out.Playlists = append(out.Playlists, playlist)
	}
	if err := os.WriteFile(out.Master, []byte(BuildMasterPlaylist(f.ladder)), 0o644); err != nil {
		return Output{}, fmt.Errorf("write master playlist: %w", err)
	}
	files, err := listFiles(outDir)
	if err != nil {
		return Output{}, err
	}
	out.Files = files
	if probe, err := Probe(ctx, f.output, f.ffprobe, input); err == nil {
		out.Duration = probe.DurationSeconds()
	}
	return out, nil
}

func (f *FFmpeg) variantArgs(input, outDir string, v Variant) []string {
	bitrate := strconv.Itoa(v.BitrateKbps) + "k"
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-c:v", "libx264", "-preset", "fast",
		"-b:v", bitrate, "-maxrate", bitrate,
		"-bufsize", strconv.Itoa(v.BitrateKbps*2) + "k",
		"-vf", fmt.Sprintf("scale=%d:%d", v.Width, v.Height),
		"-c:a", "aac", "-b:a", "128k",
		"-hls_time", strconv.Itoa(f.segmentSeconds),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outDir, v.Name+"_%03d.ts"),
		"-f", "hls",
		filepath.Join(outDir, v.Name+".m3u8"),
	}
}

// Thumbnail writes a single JPEG frame from input to dest.
func (f *FFmpeg) Thumbnail(ctx context.Context, input, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(f.thumbnailOffset, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-1", f.thumbnailWidth),
		dest,
	}
	if err := f.run(ctx, f.ffmpeg, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcode", "thumbnail", "", err)
	}
	return nil
}

// Duration probes input and returns its length in seconds.
func (f *FFmpeg) Duration(ctx context.Context, input string) (float64, error) {
	probe, err := Probe(ctx, f.output, f.ffprobe, input)
	if err != nil {
		return 0, err
	}
	return probe.DurationSeconds(), nil
}

// BuildMasterPlaylist renders the master playlist for ladder.
func BuildMasterPlaylist(ladder []Variant) string {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, v := range ladder {
		fmt.Fprintf(&sb, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n%s.m3u8\n", v.Bandwidth(), v.Width, v.Height, v.Name)
	}
	return sb.String()
}

func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list hls files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
