package preflight

import (
	"context"

	"storyforge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result

	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	if cfg.Database.Driver == config.DriverSQLite {
		results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	}
	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, CheckDirectoryAccess("Asset directory", cfg.Storage.LocalDir))
	}

	for _, status := range CheckSystemDeps(cfg) {
		detail := status.Command
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}

	switch cfg.Expansion.Provider {
	case config.ExpansionOpenAI:
		results = append(results, CheckLLM(ctx, "Expansion LLM", cfg.Expansion))
	case config.ExpansionGemini:
		results = append(results, CheckAPIKey("Expansion Gemini", cfg.Expansion.APIKey))
	}
	if cfg.Synthesis.Provider == config.SynthesisHTTP {
		results = append(results, CheckSynthesisAPI(ctx, cfg.Synthesis.BaseURL, cfg.Synthesis.APIKey))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
