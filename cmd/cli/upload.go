package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-reconciler/internal/app"
	"github.com/dvloznov/statement-reconciler/internal/domain"
)

func (c *cli) uploadCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a statement PDF and create a pending upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filePath := args[0]

			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("opening %s: %w", filePath, err)
			}
			defer f.Close()

			store, cleanup, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			docs, err := app.OpenDocuments(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer docs.Close()

			upload := &domain.StatementUpload{
				ID:        uuid.New().String(),
				UserID:    userID,
				Filename:  filepath.Base(filePath),
				Status:    domain.UploadStatusPending,
				CreatedAt: time.Now().UTC(),
			}

			c.log.Info().
				Str("upload_id", upload.ID).
				Str("user_id", userID).
				Str("file", filePath).
				Msg("Uploading statement")

			upload.FilePath, err = docs.Upload(ctx, upload.ID+"/"+upload.Filename, f)
			if err != nil {
				return err
			}
			if err := store.CreateUpload(ctx, upload); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as %s (%s)\n", filePath, upload.ID, upload.FilePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Ledger owner of the statement")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
