package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"storyforge/internal/bible"
	"storyforge/internal/continuity"
	"storyforge/internal/expand"
	"storyforge/internal/logging"
	"storyforge/internal/queue"
	"storyforge/internal/services"
	"storyforge/internal/staging"
	"storyforge/internal/storage"
	"storyforge/internal/videogen"
)

const videoPromptFallbackChars = 500

func (o *Orchestrator) expand(ctx context.Context, st *PipelineState) error {
	req := expand.Request{
		SceneID:          st.Scene.ID,
		SegmentID:        st.Segment.ID,
		Prompt:           st.Segment.Prompt,
		SceneTitle:       st.Scene.Title,
		SceneDescription: st.Scene.Description,
		Bible:            st.Bible,
		Previous:         expand.LastSegments(previousSegments(st.Previous), o.cfg.Expansion.PreviousSegments),
	}
	res, err := o.deps.Expander.Expand(ctx, req)
	if err != nil {
		return err
	}
	script := strings.TrimSpace(res.FullScript)
	if script == "" {
		return services.Wrap(services.ErrTransient, "expand", "parse", "provider returned an empty script", nil)
	}
	st.Expansion = res
	st.Script = script
	st.DurationSeconds = int(res.DurationEstimate)
	if st.DurationSeconds <= 0 {
		st.DurationSeconds = o.defaultDuration()
	}
	if err := o.deps.Repository.UpdateSegment(ctx, st.Segment.ID, queue.SegmentUpdate{
		ExpandedScript: queue.Ptr(script),
	}); err != nil {
		return fmt.Errorf("persist expanded script: %w", err)
	}
	st.Segment.ExpandedScript = script
	logging.WithContext(ctx, o.logger).Info("script expanded",
		logging.Int("script_chars", utf8.RuneCountInString(script)),
		logging.Int("duration_seconds", st.DurationSeconds),
		logging.String("mood", res.Mood),
	)
	return nil
}

func (o *Orchestrator) validateContinuity(ctx context.Context, st *PipelineState) error {
	if !o.cfg.Continuity.Enabled {
		return nil
	}
	logger := logging.WithContext(ctx, o.logger)
	engine := o.deps.Continuity

	result := engine.Validate(st.Script, st.Bible)
	st.Continuity = result
	if o.cfg.Continuity.ApplyCorrections && len(result.AutoCorrections) > 0 {
		corrected := engine.ApplyCorrections(st.Script, result.AutoCorrections)
		if corrected != st.Script {
			if err := o.deps.Repository.UpdateSegment(ctx, st.Segment.ID, queue.SegmentUpdate{
				ExpandedScript: queue.Ptr(corrected),
			}); err != nil {
				return fmt.Errorf("persist corrected script: %w", err)
			}
			st.Script = corrected
			st.Segment.ExpandedScript = corrected
		}
		st.Corrections = result.AutoCorrections
		logger.Info("continuity corrections applied",
			logging.Event("continuity_corrected"),
			logging.Int("corrections", len(result.AutoCorrections)),
		)
		result = engine.Validate(st.Script, st.Bible)
	}
	st.Unresolved = result.Errors()
	if len(st.Unresolved) > 0 {
		// Unresolved violations are reported, not enforced.
		messages := make([]string, 0, len(st.Unresolved))
		for _, v := range st.Unresolved {
			messages = append(messages, v.Message)
		}
		logging.WarnWithContext(logger, "continuity violations remain after correction", "continuity_warning",
			logging.Int("violations", len(st.Unresolved)),
			logging.String("details", strings.Join(messages, "; ")),
			logging.String(logging.FieldImpact, "segment may contradict the scene bible"),
			logging.String(logging.FieldErrorHint, "edit the bible or the segment prompt and retry the segment"),
		)
	}
	if o.cfg.Continuity.ExtractUpdates {
		st.BibleUpdates = engine.ExtractBibleUpdates(st.Script, st.Bible)
	}
	return nil
}

func (o *Orchestrator) synthesize(ctx context.Context, st *PipelineState) error {
	dir, err := staging.Prepare(o.cfg.Paths.WorkDir, st.Job.ID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "synthesize", "prepare workspace", "cannot create work directory", err)
	}
	st.WorkDir = dir

	prompt := strings.TrimSpace(st.Expansion.VideoPrompt)
	if prompt == "" {
		prompt = truncateRunes(st.Script, videoPromptFallbackChars)
	}
	res, err := o.deps.Synthesizer.Generate(ctx, videogen.Request{
		SegmentID:       st.Segment.ID,
		Prompt:          prompt,
		AspectRatio:     o.cfg.Synthesis.AspectRatio,
		DurationSeconds: videogen.ClampDuration(st.DurationSeconds),
		OutputDir:       dir,
	})
	if err != nil {
		return err
	}
	if res.VideoPath == "" {
		return services.Wrap(services.ErrTransient, "synthesize", "generate", "provider returned no video", nil)
	}
	st.Video = res
	return nil
}

func (o *Orchestrator) transcode(ctx context.Context, st *PipelineState) error {
	out, err := o.deps.Transcoder.ProduceVariants(ctx, st.Video.VideoPath, filepath.Join(st.WorkDir, "hls"))
	if err != nil {
		return err
	}
	st.Variants = out
	thumb := filepath.Join(st.WorkDir, "thumbnail.jpg")
	if err := o.deps.Transcoder.Thumbnail(ctx, st.Video.VideoPath, thumb); err != nil {
		return err
	}
	st.Thumbnail = thumb
	return nil
}

func (o *Orchestrator) upload(ctx context.Context, st *PipelineState) error {
	urls, err := o.deps.Uploader.UploadSegment(ctx, st.Scene.ID, st.Segment.ID, storage.SegmentAssets{
		Source:    st.Video.VideoPath,
		Thumbnail: st.Thumbnail,
		HLSDir:    st.Variants.Dir,
		HLSFiles:  st.Variants.Files,
	})
	if err != nil {
		return err
	}
	if urls.VideoURL == "" {
		return services.Wrap(services.ErrTransient, "upload", "publish", "no video url returned", nil)
	}
	st.URLs = urls
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, st *PipelineState) error {
	duration := st.Video.Duration
	if duration <= 0 {
		duration = st.Variants.Duration
	}
	if duration <= 0 {
		duration = float64(videogen.ClampDuration(st.DurationSeconds))
	}

	hash, err := o.mergeBible(ctx, st)
	if err != nil {
		return err
	}

	if err := o.deps.Repository.UpdateSegment(ctx, st.Segment.ID, queue.SegmentUpdate{
		Status:         queue.Ptr(queue.StatusCompleted),
		VideoURL:       queue.Ptr(st.URLs.VideoURL),
		HLSURL:         queue.Ptr(st.URLs.HLSURL),
		ThumbnailURL:   queue.Ptr(st.URLs.ThumbnailURL),
		Duration:       queue.Ptr(duration),
		ContinuityHash: queue.Ptr(hash),
	}); err != nil {
		return fmt.Errorf("persist segment: %w", err)
	}

	result := &Result{
		SegmentID:      st.Segment.ID,
		VideoURL:       st.URLs.VideoURL,
		HLSURL:         st.URLs.HLSURL,
		ThumbnailURL:   st.URLs.ThumbnailURL,
		Duration:       duration,
		ContinuityHash: hash,
		Corrections:    st.Corrections,
		Violations:     st.Unresolved,
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := st.Machine.Complete(ctx, string(payload)); err != nil {
		return err
	}
	st.Result = result

	if err := staging.Remove(o.cfg.Paths.WorkDir, st.Job.ID); err != nil {
		logging.WithContext(ctx, o.logger).Debug("work directory cleanup failed", logging.Error(err))
	}
	return nil
}

// mergeBible folds extracted entities and a timeline entry for this segment
// into the scene bible and returns the merged fingerprint. Scenes without a
// bible only get one once something was extracted.
func (o *Orchestrator) mergeBible(ctx context.Context, st *PipelineState) (string, error) {
	if st.Bible == nil && st.BibleUpdates.IsEmpty() {
		return "", nil
	}
	updates := st.BibleUpdates.Clone()
	if updates == nil {
		updates = bible.New(st.Scene.ID)
	}
	known := st.Bible.Clone()
	if known == nil {
		known = bible.New(st.Scene.ID)
	}
	known.Merge(updates)

	event := bible.TimelineEvent{
		SegmentID:   st.Segment.ID,
		Sequence:    st.Segment.OrderIndex,
		Description: timelineDescription(st),
		Characters:  continuity.MentionedCharacters(st.Script, known),
	}
	if locations := continuity.MentionedLocations(st.Script, known); len(locations) > 0 {
		event.Location = locations[0]
	}
	updates.Timeline = append(updates.Timeline, event)

	merged, err := o.deps.Repository.MergeSceneBible(ctx, st.Scene.ID, updates)
	if err != nil {
		return "", fmt.Errorf("merge scene bible: %w", err)
	}
	if merged == nil {
		return "", errors.New("merge scene bible: no bible returned")
	}
	st.Bible = merged
	return merged.Fingerprint(), nil
}

func timelineDescription(st *PipelineState) string {
	for _, candidate := range []string{st.Expansion.SceneDescription, st.Expansion.VideoPrompt, st.Segment.Prompt} {
		if s := strings.TrimSpace(candidate); s != "" {
			return truncateRunes(s, 200)
		}
	}
	return "segment " + st.Segment.ID
}

func (o *Orchestrator) defaultDuration() int {
	if d := o.cfg.Synthesis.DefaultDuration; d > 0 {
		return d
	}
	return videogen.DefaultDuration
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
