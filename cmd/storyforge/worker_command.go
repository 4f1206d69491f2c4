package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
	"storyforge/internal/daemon"
	"storyforge/internal/logging"
	"storyforge/internal/preflight"
	"storyforge/internal/progress"
	"storyforge/internal/queue"
	"storyforge/internal/workflow"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the segment generation worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if removed := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: "*.log",
				Exclude: []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
			}); removed > 0 {
				logger.Info("pruned old logs", logging.Int("removed", removed))
			}

			if !skipPreflight {
				if failed := preflight.Failed(preflight.RunAll(runCtx, cfg)); len(failed) > 0 {
					for _, r := range failed {
						logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
							logging.String("check", r.Name),
							logging.String("detail", r.Detail),
							logging.String(logging.FieldErrorHint, "run `storyforge preflight` for the full report"),
						)
					}
					return fmt.Errorf("%d preflight check(s) failed", len(failed))
				}
			}

			store, err := ctx.openStore(runCtx)
			if err != nil {
				return err
			}
			hub := progress.NewHub(1024)
			orch, cleanup, err := buildOrchestrator(runCtx, cfg, store, hub, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			mgr := workflow.NewManager(cfg, store, orch, logger)
			d, err := daemon.New(cfg, store, logger, mgr, hub)
			if err != nil {
				return err
			}
			if err := d.Start(runCtx); err != nil {
				return err
			}
			started := d.Status(runCtx)
			logger.Info("storyforge worker started",
				logging.String("lock_file", started.LockFilePath),
				logging.String("api_bind", started.APIBind),
				logging.Int("pending", started.Workflow.QueueStats[queue.StatusPending]),
			)
			<-runCtx.Done()
			final := d.Status(context.Background())
			logger.Info("storyforge worker shutting down",
				logging.Int("completed", final.Workflow.Counters.Completed),
				logging.Int("failed", final.Workflow.Counters.Failed),
				logging.Int("retried", final.Workflow.Counters.Retried),
			)
			d.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start even when readiness checks fail")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API without processing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(runCtx)
			if err != nil {
				return err
			}
			if bind == "" {
				bind = cfg.API.Bind
			}
			opts := []api.Option{api.WithToken(cfg.API.Token)}
			if pinger, ok := store.(api.Pinger); ok {
				opts = append(opts, api.WithPinger(pinger))
			}
			return api.New(store, nil, logger, opts...).Serve(runCtx, bind)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to api.bind)")
	return cmd
}
