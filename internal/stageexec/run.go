// Package stageexec runs one pipeline stage with uniform logging and
// progress reporting. It does not retry; failures go back to the caller.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storyforge/internal/logging"
	"storyforge/internal/progress"
	"storyforge/internal/services"
	"storyforge/internal/stage"
)

// Options controls a single stage execution.
type Options[S any] struct {
	Logger *slog.Logger
	Sink   progress.Sink
	// Event carries the job, segment and scene ids copied into every
	// published event.
	Event progress.Event
	Stage stage.Descriptor[S]
	State S
	// Timeout bounds Execute when positive.
	Timeout time.Duration
}

// Run publishes the stage's start percent, executes it and publishes the end
// percent on success.
func Run[S any](ctx context.Context, opts Options[S]) error {
	desc := opts.Stage
	if desc.Execute == nil {
		return fmt.Errorf("stage handler unavailable: %s", desc.Name)
	}

	stageCtx := services.WithStage(ctx, string(desc.Name))
	logger := logging.WithContext(stageCtx, opts.Logger)

	logger.Info(
		"stage started",
		logging.Event("stage_start"),
		logging.Float64("progress_percent", desc.Weight.Start),
	)
	publish(stageCtx, logger, opts, desc.Weight.Start, desc.Weight.StartLabel)

	execCtx := stageCtx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(stageCtx, opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	err := desc.Execute(execCtx, opts.State)
	if err != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		err = services.Wrap(services.ErrTimeout, string(desc.Name), "execute",
			fmt.Sprintf("stage exceeded %s", opts.Timeout), err)
	}
	if err != nil {
		err = stage.Classify(desc.Name, desc.Retryable, err)
		details := services.Details(err)
		logger.Error(
			"stage failed",
			logging.Event("stage_failure"),
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return err
	}

	publish(stageCtx, logger, opts, desc.Weight.End, desc.Weight.EndLabel)
	logger.Info(
		"stage completed",
		logging.Event("stage_complete"),
		logging.Float64("progress_percent", desc.Weight.End),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func publish[S any](ctx context.Context, logger *slog.Logger, opts Options[S], percent float64, label string) {
	if opts.Sink == nil {
		return
	}
	evt := opts.Event
	evt.Stage = string(opts.Stage.Name)
	evt.Percent = percent
	evt.Label = label
	evt.Timestamp = time.Now().UTC()
	if err := opts.Sink.Publish(ctx, evt); err != nil {
		logger.Debug("progress publish failed", logging.Error(err))
	}
}
