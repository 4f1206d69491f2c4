package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
	"storyforge/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"queue"},
		Short:   "Inspect and retry generation jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsStatsCommand(ctx))
	return jobsCmd
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlags []string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(store jobStore) error {
				jobs, err := store.ListJobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				now := time.Now()
				if asJSON {
					out := api.JobListResponse{Jobs: make([]api.Job, 0, len(jobs))}
					for _, job := range jobs {
						out.Jobs = append(out.Jobs, api.FromJob(job, now))
					}
					return writeJSON(cmd, out)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.SegmentID,
						colorStatus(job.Status, colorize),
						job.Stage,
						formatPercent(job.Progress),
						fmt.Sprintf("%d/%d", job.Attempt+1, job.MaxAttempts),
						relativeTime(job.UpdatedAt, now),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Segment", "Status", "Stage", "Progress", "Attempt", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job and its segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store jobStore) error {
				job, err := store.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				seg, err := store.GetSegment(cmd.Context(), job.SegmentID)
				if err != nil {
					return err
				}
				now := time.Now()
				if asJSON {
					resp := api.JobResponse{Job: api.FromJob(job, now)}
					if seg != nil {
						dto := api.FromSegment(seg)
						resp.Segment = &dto
					}
					return writeJSON(cmd, resp)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := [][2]string{
					{"Job", job.ID},
					{"Scene", job.SceneID},
					{"Segment", job.SegmentID},
					{"Status", colorStatus(job.Status, colorize)},
					{"Stage", job.Stage},
					{"Progress", formatPercent(job.Progress)},
					{"Attempt", strconv.Itoa(job.Attempt+1) + " of " + strconv.Itoa(job.MaxAttempts)},
					{"Runs", strconv.Itoa(job.Attempts)},
					{"Next attempt", relativeTimePtr(job.NextAttemptAt, now)},
					{"Started", relativeTimePtr(job.StartedAt, now)},
					{"Completed", relativeTimePtr(job.CompletedAt, now)},
				}
				if job.Error != "" {
					lines = append(lines, [2]string{"Error", job.Error})
				}
				if seg != nil {
					lines = append(lines,
						[2]string{"Prompt", truncate(seg.Prompt, 72)},
						[2]string{"Video", seg.VideoURL},
						[2]string{"HLS", seg.HLSURL},
						[2]string{"Thumbnail", seg.ThumbnailURL},
						[2]string{"Continuity", seg.ContinuityHash},
					)
				}
				for _, line := range lines {
					if line[1] == "" {
						continue
					}
					fmt.Fprintf(out, "%-*s %s\n", statusLabelWidth, line[0]+":", line[1])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs (all unrequeued failures when no IDs are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store jobStore) error {
				jobs, err := store.RequeueFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No failed jobs to retry")
					return nil
				}
				for _, job := range jobs {
					fmt.Fprintf(out, "Queued job %s for segment %s\n", job.ID, job.SegmentID)
				}
				return nil
			})
		},
	}
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store jobStore) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(queue.AllStatuses()))
				for _, status := range queue.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
				}
				if h, ok := store.(interface {
					Health(context.Context) (queue.HealthSummary, error)
				}); ok {
					health, err := h.Health(cmd.Context())
					if err != nil {
						return err
					}
					rows = append(rows,
						[]string{"leased", strconv.Itoa(health.Leased)},
						[]string{"waiting for retry", strconv.Itoa(health.Waiting)},
					)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
