package deps

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveBinary returns the absolute path for command when it can be found,
// or the trimmed command unchanged so callers can still report it.
func ResolveBinary(command string) string {
	command = strings.TrimSpace(command)
	if command == "" {
		return ""
	}
	if resolved, err := exec.LookPath(command); err == nil {
		if abs, err := filepath.Abs(resolved); err == nil {
			return abs
		}
		return resolved
	}
	return command
}

// MediaRequirements lists the ffmpeg tools the transcode ladder and the test
// pattern provider shell out to.
func MediaRequirements(ffmpeg, ffprobe string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ResolveBinary(ffmpeg),
			Description: "Required for HLS transcoding and thumbnails",
		},
		{
			Name:        "FFprobe",
			Command:     ResolveBinary(ffprobe),
			Description: "Required for duration and resolution probing",
		},
	}
}
