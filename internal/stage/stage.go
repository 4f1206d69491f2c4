// Package stage describes the ordered steps of the generation pipeline.
//
// A Descriptor pairs a stage name and its slice of the 0-100 progress range
// with the function that does the work. Descriptors are generic over the run
// state so the workflow package can thread its own state type through them
// without this package importing it.
package stage

import (
	"context"
	"fmt"
)

// Name identifies a pipeline stage.
type Name string

const (
	Expand             Name = "expand"
	ValidateContinuity Name = "validate_continuity"
	Synthesize         Name = "synthesize"
	Transcode          Name = "transcode"
	Upload             Name = "upload"
	Finalize           Name = "finalize"
)

// Order is the fixed execution order.
var Order = []Name{Expand, ValidateContinuity, Synthesize, Transcode, Upload, Finalize}

// Weight is a stage's share of overall progress and the labels reported at
// its start and end.
type Weight struct {
	Start      float64
	End        float64
	StartLabel string
	EndLabel   string
}

var weights = map[Name]Weight{
	Expand:             {Start: 0, End: 25, StartLabel: "script_expanding", EndLabel: "script_expanded"},
	ValidateContinuity: {Start: 25, End: 40, StartLabel: "continuity_checking", EndLabel: "continuity_checked"},
	Synthesize:         {Start: 40, End: 70, StartLabel: "generating_video", EndLabel: "video_generated"},
	Transcode:          {Start: 70, End: 85, StartLabel: "processing_hls", EndLabel: "hls_processed"},
	Upload:             {Start: 85, End: 95, StartLabel: "uploading", EndLabel: "uploaded"},
	Finalize:           {Start: 95, End: 100, StartLabel: "finalizing", EndLabel: "complete"},
}

// WeightOf returns the progress weight for a stage.
func WeightOf(name Name) (Weight, bool) {
	w, ok := weights[name]
	return w, ok
}

// Descriptor is one executable stage.
type Descriptor[S any] struct {
	Name   Name
	Weight Weight
	// Retryable marks whether a failure may be retried. Failures of a
	// non-retryable stage are treated as permanent.
	Retryable bool
	Execute   func(ctx context.Context, state S) error
}

// New builds a descriptor with the standard weight for name.
func New[S any](name Name, retryable bool, fn func(ctx context.Context, state S) error) Descriptor[S] {
	w, _ := WeightOf(name)
	return Descriptor[S]{Name: name, Weight: w, Retryable: retryable, Execute: fn}
}

// ValidateSequence checks that stages cover 0..100 without gaps or overlap
// and each has an Execute func.
func ValidateSequence[S any](stages []Descriptor[S]) error {
	if len(stages) == 0 {
		return fmt.Errorf("no stages")
	}
	prevEnd := 0.0
	for i, s := range stages {
		if s.Execute == nil {
			return fmt.Errorf("stage %s has no execute func", s.Name)
		}
		if s.Weight.Start != prevEnd {
			return fmt.Errorf("stage %s starts at %.0f, expected %.0f", s.Name, s.Weight.Start, prevEnd)
		}
		if s.Weight.End < s.Weight.Start {
			return fmt.Errorf("stage %s ends before it starts", s.Name)
		}
		if i == len(stages)-1 && s.Weight.End != 100 {
			return fmt.Errorf("final stage %s ends at %.0f, expected 100", s.Name, s.Weight.End)
		}
		prevEnd = s.Weight.End
	}
	return nil
}
