// Package api serves the worker's HTTP status surface and defines the
// transport-friendly DTOs the CLI and other consumers render.
//
// # Routes
//
//	GET  /healthz                 liveness plus database ping
//	GET  /api/status              workflow state and queue counts
//	GET  /api/jobs                jobs, optionally ?status=FAILED,PENDING
//	GET  /api/jobs/:id            one job with its segment
//	GET  /api/jobs/:id/events     server-sent progress events
//	POST /api/jobs/:id/retry      requeue a failed job
//	GET  /api/scenes/:id          scene with its ordered segments
//	GET  /api/scenes/:id/bible    current continuity bible
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses are exposed as the stored uppercase
// strings. Timestamps use RFC3339 with milliseconds. A job's result JSON is
// passed through as json.RawMessage to avoid double-encoding.
package api
