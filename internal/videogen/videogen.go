// Package videogen renders a video clip from a text prompt.
//
// HTTPProvider drives a remote text-to-video API through submit, poll and
// download. TestPatternProvider renders an ffmpeg test card locally so the
// pipeline runs end to end without credentials.
package videogen

import (
	"context"
	"math"
)

// Supported clip lengths in seconds.
var Durations = []int{4, 6, 8}

// DefaultDuration is used when a request does not ask for one.
const DefaultDuration = 8

// DefaultAspectRatio is the frame shape requested from providers.
const DefaultAspectRatio = "16:9"

// SourceFile is the file name providers write into Request.OutputDir.
const SourceFile = "source.mp4"

// Request describes one clip.
type Request struct {
	SegmentID       string
	Prompt          string
	AspectRatio     string
	DurationSeconds int
	OutputDir       string
}

// Result points at the rendered clip on local disk.
type Result struct {
	VideoPath string
	Duration  float64
	Width     int
	Height    int
	Model     string
}

// Provider renders clips.
type Provider interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// ClampDuration maps seconds onto the nearest supported duration. Ties go to
// the shorter clip; non-positive input yields DefaultDuration.
func ClampDuration(seconds int) int {
	if seconds <= 0 {
		return DefaultDuration
	}
	best := Durations[0]
	for _, d := range Durations[1:] {
		if math.Abs(float64(d-seconds)) < math.Abs(float64(best-seconds)) {
			best = d
		}
	}
	return best
}

// dimensions returns the 1080p frame size for an aspect ratio.
func dimensions(aspect string) (int, int) {
	switch aspect {
	case "9:16":
		return 1080, 1920
	case "1:1":
		return 1080, 1080
	default:
		return 1920, 1080
	}
}
