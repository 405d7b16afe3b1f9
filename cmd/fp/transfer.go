package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/formpal/formpal/internal/schema"
	"github.com/formpal/formpal/internal/session"
	"github.com/formpal/formpal/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file.jsonl]",
	GroupID: "advanced",
	Short:   "Write all items as JSONL",
	Long: `Write every saved item as one JSON object per line, newest first.
Without a file argument the output goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session.Session) error {
			items := s.Repository().Items()

			var w io.Writer = os.Stdout
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := schema.WriteJSONL(w, items); err != nil {
				return err
			}
			if len(args) == 1 {
				fmt.Printf("%s Exported %d items to %s\n", ui.RenderPass("✓"), len(items), args[0])
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "advanced",
	Short:   "Add items from a JSONL export",
	Long: `Add items from a JSONL file. Items whose id is already saved are
skipped; the rest are appended in file order with a single write.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := schema.ReadJSONL(args[0])
		if err != nil {
			return err
		}
		for i := range items {
			if err := items[i].Validate(); err != nil {
				return fmt.Errorf("invalid item on line %d: %w", i+1, err)
			}
		}

		return withSession(cmd, func(ctx context.Context, s *session.Session) error {
			added, err := s.Repository().Import(ctx, items)
			if err != nil {
				return err
			}
			fmt.Printf("%s Imported %d items (%d already present)\n",
				ui.RenderPass("✓"), added, len(items)-added)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
