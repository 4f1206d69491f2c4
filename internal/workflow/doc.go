// Package workflow turns queued generate_segment jobs into published video
// segments.
//
// The Orchestrator handles one job: it consults the DedupGuard, loads the
// segment, scene, bible and earlier segments, then drives the JobStateMachine
// through the fixed stage sequence (expand, validate_continuity, synthesize,
// transcode, upload, finalize). Stages share a PipelineState and report
// progress through the state machine, which persists it and forwards it to
// the progress hub.
//
// The Manager is the queue integration. It leases jobs, keeps leases alive
// with heartbeats, serializes work per scene, and applies the RetryPolicy to
// failures: transient errors are rescheduled with exponential backoff and
// permanent or exhausted ones fail the job and its segment.
package workflow
