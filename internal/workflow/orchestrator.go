package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storyforge/internal/config"
	"storyforge/internal/continuity"
	"storyforge/internal/logging"
	"storyforge/internal/progress"
	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/stage"
	"storyforge/internal/stageexec"
)

// TerminalError reports a job that cannot be processed at all, such as one
// whose segment or scene is missing. It is always permanent.
type TerminalError struct {
	JobID  string
	Reason string
	Err    error
}

func (e *TerminalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Reason, e.Err)
	}
	return fmt.Sprintf("job %s: %s", e.JobID, e.Reason)
}

func (e *TerminalError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrPermanent}
	}
	return []error{services.ErrPermanent, e.Err}
}

// Outcome is the result of handling one delivery.
type Outcome struct {
	Success bool
	// Skipped is set when the DedupGuard short-circuited the delivery.
	Skipped bool
	Verdict Verdict
	Result  *Result
}

// Collaborators are the external services a pipeline run calls.
type Collaborators struct {
	Repository  Repository
	Expander    Expander
	Synthesizer Synthesizer
	Transcoder  Transcoder
	Uploader    Uploader
	// Continuity defaults to continuity.New with the configured radius.
	Continuity *continuity.Engine
	// Progress receives every event after the state machine has persisted it.
	Progress progress.Sink
}

// Orchestrator runs one job through the stage sequence.
type Orchestrator struct {
	cfg    *config.Config
	deps   Collaborators
	dedup  *DedupGuard
	logger *slog.Logger
	stages []stage.Descriptor[*PipelineState]
}

// NewOrchestrator validates the collaborators and builds the stage sequence.
func NewOrchestrator(cfg *config.Config, deps Collaborators, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("workflow: config is required")
	}
	switch {
	case deps.Repository == nil:
		return nil, errors.New("workflow: repository is required")
	case deps.Expander == nil:
		return nil, errors.New("workflow: expander is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("workflow: synthesizer is required")
	case deps.Transcoder == nil:
		return nil, errors.New("workflow: transcoder is required")
	case deps.Uploader == nil:
		return nil, errors.New("workflow: uploader is required")
	}
	if deps.Continuity == nil {
		deps.Continuity = continuity.New(continuity.WithRadius(cfg.Continuity.ContextRadius))
	}
	if deps.Progress == nil {
		deps.Progress = progress.Discard
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		dedup:  NewDedupGuard(deps.Repository),
		logger: logging.NewComponentLogger(logger, "orchestrator"),
	}
	o.stages = []stage.Descriptor[*PipelineState]{
		stage.New(stage.Expand, true, o.expand),
		stage.New(stage.ValidateContinuity, true, o.validateContinuity),
		stage.New(stage.Synthesize, true, o.synthesize),
		stage.New(stage.Transcode, true, o.transcode),
		stage.New(stage.Upload, true, o.upload),
		stage.New(stage.Finalize, true, o.finalize),
	}
	if err := stage.ValidateSequence(o.stages); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	return o, nil
}

// Dedup exposes the orchestrator's guard.
func (o *Orchestrator) Dedup() *DedupGuard {
	return o.dedup
}

// Handle runs job through the pipeline. A nil error with Success false only
// happens for a skipped delivery of an already failed job. Errors are
// returned unretried; deciding on a retry is the caller's job.
func (o *Orchestrator) Handle(ctx context.Context, job *queue.Job) (Outcome, error) {
	if job == nil {
		return Outcome{}, &TerminalError{Reason: "nil job"}
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithSegmentID(ctx, job.SegmentID)
	ctx = services.WithSceneID(ctx, job.SceneID)
	ctx = services.WithAttempt(ctx, job.Attempt)
	logger := logging.WithContext(ctx, o.logger)

	verdict, err := o.dedup.Check(ctx, job.ID, job.Attempt)
	if err != nil {
		if services.IsPermanent(err) {
			return Outcome{}, &TerminalError{JobID: job.ID, Reason: "job record missing", Err: err}
		}
		return Outcome{}, err
	}
	if verdict != VerdictProcess {
		logger.Info("skipping duplicate delivery",
			logging.Event("job_skipped"),
			logging.String("verdict", verdict.String()),
		)
		return Outcome{Success: verdict != VerdictFailed, Skipped: true, Verdict: verdict}, nil
	}
	defer o.dedup.MarkProcessed(job.ID, job.Attempt)

	if job.Type != "" && job.Type != queue.JobTypeGenerateSegment {
		return Outcome{}, &TerminalError{JobID: job.ID, Reason: "unsupported job type " + job.Type}
	}

	state, err := o.load(ctx, job)
	if err != nil {
		return Outcome{}, err
	}
	state.Machine = NewJobStateMachine(o.deps.Repository, job, o.deps.Progress)
	if err := state.Machine.Begin(ctx); err != nil {
		return Outcome{}, err
	}
	logger.Info("job started",
		logging.Event("job_start"),
		logging.Int("attempts", job.Attempts),
		logging.Int("max_attempts", job.MaxAttempts),
	)

	event := progress.Event{JobID: job.ID, SegmentID: job.SegmentID, SceneID: job.SceneID}
	for _, desc := range o.stages {
		if err := stageexec.Run(ctx, stageexec.Options[*PipelineState]{
			Logger:  logger,
			Sink:    state.Machine,
			Event:   event,
			Stage:   desc,
			State:   state,
			Timeout: o.cfg.StageTimeout(),
		}); err != nil {
			return Outcome{}, err
		}
	}

	logger.Info("job completed",
		logging.Event("job_complete"),
		logging.String("video_url", state.Result.VideoURL),
		logging.Float64("duration_seconds", state.Result.Duration),
	)
	return Outcome{Success: true, Verdict: VerdictProcess, Result: state.Result}, nil
}

// load reads everything the stages need. Missing rows are terminal; read
// failures are returned as is so they can be retried.
func (o *Orchestrator) load(ctx context.Context, job *queue.Job) (*PipelineState, error) {
	repo := o.deps.Repository
	if job.SegmentID == "" {
		return nil, &TerminalError{JobID: job.ID, Reason: "job has no segment id"}
	}
	seg, err := repo.GetSegment(ctx, job.SegmentID)
	if err != nil {
		return nil, fmt.Errorf("load segment %s: %w", job.SegmentID, err)
	}
	if seg == nil {
		return nil, &TerminalError{JobID: job.ID, Reason: "segment " + job.SegmentID + " not found"}
	}
	sceneID := seg.SceneID
	if sceneID == "" {
		sceneID = job.SceneID
	}
	scene, err := repo.GetScene(ctx, sceneID)
	if err != nil {
		return nil, fmt.Errorf("load scene %s: %w", sceneID, err)
	}
	if scene == nil {
		return nil, &TerminalError{JobID: job.ID, Reason: "scene " + sceneID + " not found"}
	}
	b, err := repo.GetSceneBible(ctx, scene.ID)
	if err != nil {
		return nil, fmt.Errorf("load bible for scene %s: %w", scene.ID, err)
	}
	previous, err := repo.GetSegmentsBefore(ctx, scene.ID, seg.OrderIndex)
	if err != nil {
		return nil, fmt.Errorf("load previous segments: %w", err)
	}
	return &PipelineState{
		Job:      job,
		Segment:  seg,
		Scene:    scene,
		Bible:    b,
		Previous: previous,
	}, nil
}
