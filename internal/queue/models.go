package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a job or segment.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// JobTypeGenerateSegment is the only job type the worker executes.
const JobTypeGenerateSegment = "generate_segment"

// DefaultMaxAttempts applies when a job is enqueued without an explicit limit.
const DefaultMaxAttempts = 3

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts user input into a Status, ignoring case.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether no transition may leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Scene groups ordered segments that share one continuity bible.
type Scene struct {
	ID          string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Segment is one ordered unit of video within a scene.
type Segment struct {
	ID             string
	SceneID        string
	OrderIndex     int
	Prompt         string
	ExpandedScript string
	Status         Status
	VideoURL       string
	HLSURL         string
	ThumbnailURL   string
	Duration       float64
	ContinuityHash string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasScript reports whether the expansion stage has persisted a script.
func (s *Segment) HasScript() bool {
	return s != nil && strings.TrimSpace(s.ExpandedScript) != ""
}

// Job is a unit of work delivered to the worker.
type Job struct {
	ID          string
	Type        string
	SegmentID   string
	SceneID     string
	Status      Status
	Priority    int
	Progress    float64
	Stage       string
	ResultJSON  string
	Error       string
	Attempt     int
	Attempts    int
	MaxAttempts int
	// NextAttemptAt gates when a rescheduled job may be claimed again.
	NextAttemptAt *time.Time
	// LeaseExpiresAt is set while a worker holds the job.
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Leased reports whether a worker currently holds the job.
func (j *Job) Leased(now time.Time) bool {
	return j != nil && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.After(now)
}

// String renders a short identifier for log and CLI output.
func (j *Job) String() string {
	if j == nil {
		return "<nil job>"
	}
	return fmt.Sprintf("%s (segment %s, attempt %d/%d, %s)", j.ID, j.SegmentID, j.Attempt+1, j.MaxAttempts, j.Status)
}

// JobUpdate is a partial job update. Nil fields are left untouched.
type JobUpdate struct {
	Status         *Status
	Progress       *float64
	Stage          *string
	ResultJSON     *string
	Error          *string
	Attempt        *int
	IncAttempts    bool
	NextAttemptAt  *time.Time
	ClearNextAt    bool
	LeaseExpiresAt *time.Time
	ClearLease     bool
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// SegmentUpdate is a partial segment update. Nil fields are left untouched.
type SegmentUpdate struct {
	Status         *Status
	ExpandedScript *string
	VideoURL       *string
	HLSURL         *string
	ThumbnailURL   *string
	Duration       *float64
	ContinuityHash *string
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
	Leased     int
	Waiting    int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// Ptr returns a pointer to v. It keeps partial update literals short.
func Ptr[T any](v T) *T {
	return &v
}
