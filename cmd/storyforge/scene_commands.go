package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
	"storyforge/internal/queue"
)

func newSceneCommand(ctx *commandContext) *cobra.Command {
	sceneCmd := &cobra.Command{
		Use:   "scene",
		Short: "Create and inspect scenes",
	}
	sceneCmd.AddCommand(newSceneCreateCommand(ctx))
	sceneCmd.AddCommand(newSceneListCommand(ctx))
	sceneCmd.AddCommand(newSceneShowCommand(ctx))
	return sceneCmd
}

func newSceneCreateCommand(ctx *commandContext) *cobra.Command {
	var id, description string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a scene",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store jobStore) error {
				scene, err := store.CreateScene(cmd.Context(), queue.Scene{
					ID:          strings.TrimSpace(id),
					Title:       strings.Join(args, " "),
					Description: description,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created scene %s (%s)\n", scene.ID, scene.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Scene ID (generated when empty)")
	cmd.Flags().StringVar(&description, "description", "", "Scene description")
	return cmd
}

func newSceneListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store jobStore) error {
				scenes, err := store.ListScenes(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					out := make([]api.Scene, 0, len(scenes))
					for _, scene := range scenes {
						out = append(out, api.FromScene(scene, nil))
					}
					return writeJSON(cmd, out)
				}
				if len(scenes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No scenes")
					return nil
				}
				rows := make([][]string, 0, len(scenes))
				for _, scene := range scenes {
					rows = append(rows, []string{scene.ID, scene.Title, scene.CreatedAt.Format("2006-01-02 15:04")})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Title", "Created"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSceneShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <scene-id>",
		Short: "Show a scene and its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store jobStore) error {
				scene, err := store.GetScene(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if scene == nil {
					return fmt.Errorf("scene %s not found", args[0])
				}
				segments, err := store.ListSegments(cmd.Context(), scene.ID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromScene(scene, segments))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s  %s\n", scene.ID, scene.Title)
				if scene.Description != "" {
					fmt.Fprintln(out, scene.Description)
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(segments))
				for _, seg := range segments {
					rows = append(rows, []string{
						strconv.Itoa(seg.OrderIndex),
						seg.ID,
						colorStatus(seg.Status, colorize),
						truncate(seg.Prompt, 48),
						seg.HLSURL,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "Segment", "Status", "Prompt", "HLS"}, rows, []columnAlignment{alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		segmentID   string
		priority    int
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "enqueue <scene-id> <prompt>",
		Short: "Append a segment to a scene and queue its generation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store jobStore) error {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				sceneID := args[0]
				scene, err := store.GetScene(cmd.Context(), sceneID)
				if err != nil {
					return err
				}
				if scene == nil {
					return fmt.Errorf("scene %s not found", sceneID)
				}
				order, err := store.NextOrderIndex(cmd.Context(), sceneID)
				if err != nil {
					return err
				}
				seg, err := store.CreateSegment(cmd.Context(), queue.Segment{
					ID:         strings.TrimSpace(segmentID),
					SceneID:    sceneID,
					OrderIndex: order,
					Prompt:     strings.Join(args[1:], " "),
				})
				if err != nil {
					return err
				}
				if maxAttempts == 0 {
					maxAttempts = cfg.Retry.MaxAttempts
				}
				job, err := store.EnqueueJob(cmd.Context(), queue.NewJob{
					SegmentID:   seg.ID,
					SceneID:     sceneID,
					Priority:    priority,
					MaxAttempts: maxAttempts,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for segment %s (#%d)\n", job.ID, seg.ID, seg.OrderIndex)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&segmentID, "segment-id", "", "Segment ID (generated when empty)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Claim priority; higher runs first")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt limit (defaults to retry.max_attempts)")
	return cmd
}
