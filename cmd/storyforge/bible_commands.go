package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"storyforge/internal/bible"
)

func newBibleCommand(ctx *commandContext) *cobra.Command {
	bibleCmd := &cobra.Command{
		Use:   "bible",
		Short: "Show or import a scene's continuity bible",
	}
	bibleCmd.AddCommand(newBibleShowCommand(ctx))
	bibleCmd.AddCommand(newBibleImportCommand(ctx))
	return bibleCmd
}

func newBibleShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <scene-id>",
		Short: "Print the bible as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store jobStore) error {
				b, err := store.GetSceneBible(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if b == nil {
					return fmt.Errorf("scene %s has no bible", args[0])
				}
				if asJSON {
					return writeJSON(cmd, b)
				}
				return bible.EncodeYAML(cmd.OutOrStdout(), b)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newBibleImportCommand(ctx *commandContext) *cobra.Command {
	var merge bool
	cmd := &cobra.Command{
		Use:   "import <scene-id> <file.yaml>",
		Short: "Replace (or merge into) a scene's bible from YAML",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID, path := args[0], args[1]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open bible: %w", err)
			}
			defer file.Close()
			b, err := bible.DecodeYAML(file)
			if err != nil {
				return err
			}
			b.SceneID = sceneID

			return ctx.withStore(cmd, func(store jobStore) error {
				scene, err := store.GetScene(cmd.Context(), sceneID)
				if err != nil {
					return err
				}
				if scene == nil {
					return fmt.Errorf("scene %s not found", sceneID)
				}
				var stored *bible.Bible
				if merge {
					stored, err = store.MergeSceneBible(cmd.Context(), sceneID, b)
				} else {
					stored, err = store.PutSceneBible(cmd.Context(), b)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scene %s bible at version %d (%d characters, %d locations, %d objects)\n",
					sceneID, stored.Version, len(stored.Characters), len(stored.Locations), len(stored.Objects))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "Merge additively instead of replacing")
	return cmd
}
