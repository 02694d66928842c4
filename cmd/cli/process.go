package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-reconciler/internal/app"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/extractor"
	"github.com/dvloznov/statement-reconciler/internal/pipeline"
)

func (c *cli) processCmd() *cobra.Command {
	var opts pipeline.ProcessOptions

	cmd := &cobra.Command{
		Use:   "process <upload-id>",
		Short: "Extract and reconcile a pending or failed upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPipeline(cmd, args[0], false, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.SkipMatching, "skip-matching", false, "Treat every extracted transaction as new")
	cmd.Flags().StringVar(&opts.Parser, "parser", "", "Force a parser ("+strings.Join(extractor.AvailableParsers(), ", ")+")")
	return cmd
}

func (c *cli) retryCmd() *cobra.Command {
	var opts pipeline.ProcessOptions

	cmd := &cobra.Command{
		Use:   "retry <upload-id>",
		Short: "Reprocess a failed upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPipeline(cmd, args[0], true, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.SkipMatching, "skip-matching", false, "Treat every extracted transaction as new")
	cmd.Flags().StringVar(&opts.Parser, "parser", "", "Force a parser")
	return cmd
}

func (c *cli) runPipeline(cmd *cobra.Command, uploadID string, retry bool, opts pipeline.ProcessOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

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

	proc, err := app.NewProcessor(ctx, c.cfg, store, docs)
	if err != nil {
		return err
	}

	opts.OnProgress = func(p domain.ProcessingProgress) {
		fmt.Fprintf(out, "[%3d%%] %-11s %s\n", p.Percent, p.Step, p.Message)
	}

	run := proc.Process
	if retry {
		run = proc.Retry
	}

	c.log.Info().Str("upload_id", uploadID).Bool("retry", retry).Msg("Starting statement processing")

	result, err := run(ctx, uploadID, opts)
	if err != nil {
		return err
	}
	printResult(out, result)
	return nil
}

func printResult(out io.Writer, r *pipeline.ProcessingResult) {
	fmt.Fprintln(out, "\n=== Processing Result ===")
	fmt.Fprintf(out, "Upload:    %s\n", r.UploadID)
	if r.ParserUsed != "" {
		fmt.Fprintf(out, "Parser:    %s\n", r.ParserUsed)
	}
	if r.Period != nil {
		fmt.Fprintf(out, "Period:    %s to %s\n", r.Period.Start, r.Period.End)
	}
	fmt.Fprintf(out, "Extracted: %d\n", r.TransactionsExtracted)
	fmt.Fprintf(out, "Matched:   %d\n", r.TransactionsMatched)
	fmt.Fprintf(out, "New:       %d\n", r.TransactionsNew)

	for i, s := range r.Suggestions {
		fmt.Fprintf(out, "\n%d. %s\n", i+1, s.Transaction.Description)
		fmt.Fprintf(out, "   Status:     %s (confidence %d)\n", s.Status, s.Confidence)
		if id := s.MatchedTransactionID(); id != "" {
			fmt.Fprintf(out, "   Matched:    %s\n", id)
		}
		if s.RequiresReview {
			fmt.Fprintf(out, "   Review:     %s\n", s.Reason)
		}
	}
	fmt.Fprintln(out)
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show the processing state of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, cleanup, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			u, err := store.GetUpload(ctx, args[0])
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("statement upload not found: %s", args[0])
			}

			fmt.Fprintln(out, "\n=== Upload Details ===")
			fmt.Fprintf(out, "ID:        %s\n", u.ID)
			fmt.Fprintf(out, "User:      %s\n", u.UserID)
			fmt.Fprintf(out, "File:      %s\n", u.Filename)
			fmt.Fprintf(out, "Status:    %s\n", u.Status)
			if u.Status == domain.UploadStatusCompleted {
				fmt.Fprintf(out, "Extracted: %d (matched %d, new %d)\n", u.TransactionsExtracted, u.TransactionsMatched, u.TransactionsNew)
			}
			if u.ExtractionError != "" {
				fmt.Fprintf(out, "Error:     %s\n", u.ExtractionError)
			}
			if len(u.ExtractionLog) > 0 {
				fmt.Fprintln(out, "\n=== Log ===")
				for _, p := range u.ExtractionLog {
					fmt.Fprintf(out, "[%3d%%] %-11s %s\n", p.Percent, p.Step, p.Message)
				}
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
