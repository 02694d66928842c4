package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-reconciler/internal/app"
	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// cli holds state shared by every command once the root pre-run has loaded config.
type cli struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Statement reconciler CLI",
		Long: `Extract transactions from bank statement PDFs and reconcile them
against the ledger.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.loadConfig,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("RECONCILER_CONFIG"), "config file (defaults to RECONCILER_* env vars)")

	root.AddCommand(
		c.processCmd(),
		c.statusCmd(),
		c.retryCmd(),
		c.convertCmd(),
		c.addRateCmd(),
		c.uploadCmd(),
		c.syncReviewCmd(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrEnv(c.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg
	c.log = app.NewLogger(cfg)
	cmd.SetContext(logger.WithContext(cmd.Context(), c.log))
	return nil
}

// openStore opens the configured store; callers defer the returned cleanup.
func (c *cli) openStore(ctx context.Context) (app.Store, func(), error) {
	store, err := app.OpenStore(ctx, c.cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			c.log.Error().Err(err).Msg("Failed to close store")
		}
	}, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
