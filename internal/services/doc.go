// Package services defines shared utilities consumed by the pipeline stages
// and external provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job, segment and scene IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the retry policy
//     tell permanent failures from transient ones.
//
// Provider clients live in subpackages (llm, gemini, videogen) and report
// failures through these markers so retry behaviour stays uniform.
package services
