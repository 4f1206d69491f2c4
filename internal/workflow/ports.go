package workflow

import (
	"context"
	"time"

	"storyforge/internal/bible"
	"storyforge/internal/expand"
	"storyforge/internal/queue"
	"storyforge/internal/storage"
	"storyforge/internal/transcode"
	"storyforge/internal/videogen"
)

// Repository is the persistence the pipeline reads and writes. Getters return
// nil, nil when the row does not exist.
type Repository interface {
	GetJob(ctx context.Context, id string) (*queue.Job, error)
	GetSegment(ctx context.Context, id string) (*queue.Segment, error)
	GetScene(ctx context.Context, id string) (*queue.Scene, error)
	GetSceneBible(ctx context.Context, sceneID string) (*bible.Bible, error)
	GetSegmentsBefore(ctx context.Context, sceneID string, orderIndex int) ([]*queue.Segment, error)
	UpdateJob(ctx context.Context, id string, update queue.JobUpdate) error
	UpdateSegment(ctx context.Context, id string, update queue.SegmentUpdate) error
	MergeSceneBible(ctx context.Context, sceneID string, updates *bible.Bible) (*bible.Bible, error)
}

// Queue is the job transport the Manager polls.
type Queue interface {
	Repository
	ClaimNext(ctx context.Context, lease time.Duration, exclude []string) (*queue.Job, error)
	ExtendLease(ctx context.Context, id string, lease time.Duration) error
	ReleaseLease(ctx context.Context, id string) error
	ReclaimExpiredLeases(ctx context.Context) (int64, error)
	ScheduleRetry(ctx context.Context, id string, nextAttempt int, at time.Time, reason string) error
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// Expander turns a segment prompt into a script.
type Expander = expand.Provider

// Synthesizer renders a clip from a video prompt.
type Synthesizer = videogen.Provider

// Transcoder produces streaming variants and a poster frame.
type Transcoder interface {
	ProduceVariants(ctx context.Context, input, outDir string) (transcode.Output, error)
	Thumbnail(ctx context.Context, input, dest string) error
}

// Uploader publishes a segment's files.
type Uploader interface {
	UploadSegment(ctx context.Context, sceneID, segmentID string, assets storage.SegmentAssets) (storage.SegmentURLs, error)
}

var (
	_ Queue      = (*queue.Store)(nil)
	_ Transcoder = (*transcode.FFmpeg)(nil)
	_ Uploader   = storage.Publisher{}
)
