package workflow

import (
	"storyforge/internal/bible"
	"storyforge/internal/continuity"
	"storyforge/internal/expand"
	"storyforge/internal/queue"
	"storyforge/internal/storage"
	"storyforge/internal/transcode"
	"storyforge/internal/videogen"
)

// PipelineState is threaded through every stage of one attempt.
type PipelineState struct {
	Job      *queue.Job
	Segment  *queue.Segment
	Scene    *queue.Scene
	Bible    *bible.Bible
	Previous []*queue.Segment
	Machine  *JobStateMachine

	// WorkDir is the attempt's scratch directory, set by synthesize.
	WorkDir string

	Expansion expand.Result
	// Script is the expanded script after any continuity corrections.
	Script          string
	DurationSeconds int

	Continuity   continuity.Result
	Corrections  []continuity.AutoCorrection
	Unresolved   []continuity.Violation
	BibleUpdates *bible.Bible

	Video     videogen.Result
	Variants  transcode.Output
	Thumbnail string
	URLs      storage.SegmentURLs

	Result *Result
}

// Result is the payload stored on a completed job.
type Result struct {
	SegmentID      string                      `json:"segmentId"`
	VideoURL       string                      `json:"videoUrl"`
	HLSURL         string                      `json:"hlsUrl"`
	ThumbnailURL   string                      `json:"thumbnailUrl"`
	Duration       float64                     `json:"duration"`
	ContinuityHash string                      `json:"continuityHash,omitempty"`
	Corrections    []continuity.AutoCorrection `json:"corrections,omitempty"`
	Violations     []continuity.Violation      `json:"violations,omitempty"`
}

func previousSegments(segments []*queue.Segment) []expand.PreviousSegment {
	out := make([]expand.PreviousSegment, 0, len(segments))
	for _, seg := range segments {
		if seg == nil {
			continue
		}
		out = append(out, expand.PreviousSegment{
			OrderIndex: seg.OrderIndex,
			Prompt:     seg.Prompt,
			Script:     seg.ExpandedScript,
			VideoURL:   seg.VideoURL,
		})
	}
	return out
}
