// Package logging assembles structured slog loggers and formatting helpers used
// across storyforge.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code tags log lines
// with job, segment and scene IDs, stage names and correlation IDs. Console
// output is coloured only when writing to a terminal. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
