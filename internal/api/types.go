package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID            string          `json:"id"`
	SegmentID     string          `json:"segmentId"`
	SceneID       string          `json:"sceneId"`
	Status        string          `json:"status"`
	Priority      int             `json:"priority"`
	Progress      JobProgress     `json:"progress"`
	Attempt       int             `json:"attempt"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"maxAttempts"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	NextAttemptAt string          `json:"nextAttemptAt,omitempty"`
	Leased        bool            `json:"leased"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
	StartedAt     string          `json:"startedAt,omitempty"`
	CompletedAt   string          `json:"completedAt,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// JobProgress captures stage progress for a job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
}

// Segment is the API view of a generated clip.
type Segment struct {
	ID             string  `json:"id"`
	SceneID        string  `json:"sceneId"`
	OrderIndex     int     `json:"orderIndex"`
	Prompt         string  `json:"prompt"`
	ExpandedScript string  `json:"expandedScript,omitempty"`
	Status         string  `json:"status"`
	VideoURL       string  `json:"videoUrl,omitempty"`
	HLSURL         string  `json:"hlsUrl,omitempty"`
	ThumbnailURL   string  `json:"thumbnailUrl,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
	ContinuityHash string  `json:"continuityHash,omitempty"`
	UpdatedAt      string  `json:"updatedAt,omitempty"`
}

// Scene is the API view of a scene.
type Scene struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   string    `json:"createdAt,omitempty"`
	Segments    []Segment `json:"segments,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running      bool           `json:"running"`
	QueueStats   map[string]int `json:"queueStats"`
	ActiveScenes []string       `json:"activeScenes"`
	Completed    int            `json:"completed"`
	Failed       int            `json:"failed"`
	Retried      int            `json:"retried"`
	LastError    string         `json:"lastError,omitempty"`
	LastJob      *Job           `json:"lastJob,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job and its segment when it still exists.
type JobResponse struct {
	Job     Job      `json:"job"`
	Segment *Segment `json:"segment,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
