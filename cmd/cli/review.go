package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-reconciler/internal/matching"
	"github.com/dvloznov/statement-reconciler/internal/review"
)

func (c *cli) syncReviewCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync-review <upload-id>",
		Short: "Export suggestions that need a human to the Notion review database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			uploadID := args[0]

			if c.cfg.Notion.Token == "" || c.cfg.Notion.DatabaseID == "" {
				return errors.New("notion.token and notion.database_id are required")
			}

			store, cleanup, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := store.LatestExtraction(ctx, uploadID)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no extraction found for upload %s", uploadID)
			}

			var suggestions []matching.Suggestion
			if err := json.Unmarshal(rec.Suggestions, &suggestions); err != nil {
				return fmt.Errorf("decoding suggestions: %w", err)
			}

			notion := review.NewNotionClient(c.cfg.Notion.Token)
			res, err := review.SyncSuggestions(ctx, notion, c.cfg.Notion.DatabaseID, uploadID, suggestions, dryRun)
			if err != nil {
				return err
			}

			prefix := ""
			if dryRun {
				prefix = "[dry run] "
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sCreated %d, updated %d, archived %d, skipped %d, failed %d\n",
				prefix, res.Created, res.Updated, res.Archived, res.Skipped, res.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing to Notion")
	return cmd
}
