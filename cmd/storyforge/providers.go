package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/continuity"
	"storyforge/internal/expand"
	"storyforge/internal/progress"
	"storyforge/internal/services/gemini"
	"storyforge/internal/services/llm"
	"storyforge/internal/storage"
	"storyforge/internal/transcode"
	"storyforge/internal/videogen"
	"storyforge/internal/workflow"
)

// buildExpander selects the script expansion provider. The returned cleanup
// releases SDK clients and is never nil.
func buildExpander(ctx context.Context, cfg *config.Config) (expand.Provider, func(), error) {
	noop := func() {}
	switch cfg.Expansion.Provider {
	case config.ExpansionGemini:
		provider, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.Expansion.APIKey,
			Model:       cfg.Expansion.Model,
			Temperature: cfg.Expansion.Temperature,
		})
		if err != nil {
			return nil, noop, err
		}
		return provider, func() { _ = provider.Close() }, nil
	case config.ExpansionTemplate:
		return expand.TemplateProvider{}, noop, nil
	default:
		return llm.NewClient(llm.Config{
			APIKey:         cfg.Expansion.APIKey,
			BaseURL:        cfg.Expansion.BaseURL,
			Model:          cfg.Expansion.Model,
			Referer:        cfg.Expansion.Referer,
			Title:          cfg.Expansion.Title,
			Temperature:    cfg.Expansion.Temperature,
			TimeoutSeconds: cfg.Expansion.TimeoutSeconds,
		}), noop, nil
	}
}

// buildSynthesizer selects the video provider.
func buildSynthesizer(cfg *config.Config, logger *slog.Logger) (videogen.Provider, error) {
	switch cfg.Synthesis.Provider {
	case config.SynthesisTestPattern:
		return videogen.TestPatternProvider{FFmpeg: cfg.Transcode.FFmpegBinary}, nil
	default:
		return videogen.NewHTTPProvider(videogen.HTTPConfig{
			APIKey:       cfg.Synthesis.APIKey,
			BaseURL:      cfg.Synthesis.BaseURL,
			Model:        cfg.Synthesis.Model,
			PollInterval: time.Duration(cfg.Synthesis.PollIntervalSeconds) * time.Second,
			Timeout:      time.Duration(cfg.Synthesis.TimeoutSeconds) * time.Second,
		}, videogen.WithHTTPLogger(logger))
	}
}

// buildOrchestrator assembles the pipeline collaborators from config.
func buildOrchestrator(ctx context.Context, cfg *config.Config, repo workflow.Repository, sink progress.Sink, logger *slog.Logger) (*workflow.Orchestrator, func(), error) {
	expander, cleanup, err := buildExpander(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("expansion provider: %w", err)
	}
	synth, err := buildSynthesizer(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("synthesis provider: %w", err)
	}
	backend, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("storage backend: %w", err)
	}
	orch, err := workflow.NewOrchestrator(cfg, workflow.Collaborators{
		Repository:  repo,
		Expander:    expander,
		Synthesizer: synth,
		Transcoder:  transcode.New(cfg.Transcode),
		Uploader:    storage.Publisher{Backend: backend, Concurrency: cfg.Storage.UploadConcurrency},
		Continuity:  continuity.New(continuity.WithRadius(cfg.Continuity.ContextRadius)),
		Progress:    sink,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return orch, cleanup, nil
}
