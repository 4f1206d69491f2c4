package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storyforge/internal/preflight"
	"storyforge/internal/queue"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check binaries, directories and provider credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			results = append(results, checkStore(cmd.Context(), ctx))
			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, r := range results {
					fmt.Fprintln(out, renderCheckLine(r.Name, r.Passed, r.Detail, colorize))
				}
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// checkStore opens the configured job store and runs its own diagnostics:
// an integrity check for SQLite, a ping for Postgres.
func checkStore(ctx context.Context, cc *commandContext) preflight.Result {
	const name = "Job store"
	store, err := cc.openStore(ctx)
	if err != nil {
		return preflight.Result{Name: name, Detail: err.Error()}
	}
	switch s := store.(type) {
	case interface {
		CheckHealth(context.Context) (queue.DatabaseHealth, error)
	}:
		health, err := s.CheckHealth(ctx)
		if err != nil {
			return preflight.Result{Name: name, Detail: err.Error()}
		}
		if !health.IntegrityCheck {
			return preflight.Result{Name: name, Detail: "integrity check failed for " + health.DBPath}
		}
		return preflight.Result{Name: name, Passed: true,
			Detail: fmt.Sprintf("%s (schema v%d, %d jobs)", health.DBPath, health.SchemaVersion, health.TotalJobs)}
	case interface{ Ping(context.Context) error }:
		if err := s.Ping(ctx); err != nil {
			return preflight.Result{Name: name, Detail: err.Error()}
		}
		return preflight.Result{Name: name, Passed: true, Detail: "postgres reachable"}
	}
	return preflight.Result{Name: name, Passed: true}
}
