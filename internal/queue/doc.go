// Package queue persists scenes, segments, scene bibles and generation jobs
// in SQLite and doubles as the worker's job queue.
//
// Jobs are claimed with a lease that the worker renews while a run is in
// flight. A lease that runs out is reclaimed and the job is delivered again,
// so delivery is at-least-once; the workflow package layers deduplication on
// top. A rescheduled job carries a next_attempt_at gate and is invisible to
// ClaimNext until that time passes. The claim query never hands out two jobs
// for the same scene at once.
//
// Getters return nil, nil for missing rows. Partial updates go through
// JobUpdate and SegmentUpdate, one statement per call. Bible merges run
// read-modify-write inside a single transaction.
//
// The database is transient storage for in-flight work. Schema changes bump
// schemaVersion in schema.go; operators clear the database to adopt them.
package queue
