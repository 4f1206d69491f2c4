package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"storyforge/internal/queue"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 20

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// renderCheckLine formats one preflight result.
func renderCheckLine(label string, passed bool, detail string, colorize bool) string {
	tag, color := "OK", ansiGreen
	if !passed {
		tag, color = "FAIL", ansiRed
	}
	line := fmt.Sprintf("  %-*s [%s] %s", statusLabelWidth, label+":", tag, detail)
	if colorize {
		return color + line + ansiReset
	}
	return strings.TrimRight(line, " ")
}

func colorStatus(status queue.Status, colorize bool) string {
	text := string(status)
	if !colorize {
		return text
	}
	switch status {
	case queue.StatusCompleted:
		return ansiGreen + text + ansiReset
	case queue.StatusFailed:
		return ansiRed + text + ansiReset
	case queue.StatusProcessing:
		return ansiYellow + text + ansiReset
	default:
		return ansiBlue + text + ansiReset
	}
}

// relativeTime renders t like "3 minutes ago", or "-" for zero values.
func relativeTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func relativeTimePtr(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}
	return relativeTime(*t, now)
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.0f%%", p)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
