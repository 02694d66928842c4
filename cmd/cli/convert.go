package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-reconciler/internal/currency"
)

func parseDateFlag(s string) (civil.Date, error) {
	if s == "" {
		return civil.DateOf(time.Now()), nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

func (c *cli) convertCmd() *cobra.Command {
	var (
		amount   float64
		from, to string
		date     string
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an amount at the historical rate for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			d, err := parseDateFlag(date)
			if err != nil {
				return err
			}

			store, cleanup, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rates := currency.NewRateCache(store, currency.WithMaxDaysBack(c.cfg.Currency.MaxDaysBack))
			res, err := rates.Convert(ctx, amount, from, to, d)
			if err != nil {
				return err
			}
			if res == nil {
				return fmt.Errorf("no exchange rate available for %s/%s around %s", from, to, d)
			}

			fmt.Fprintln(cmd.OutOrStdout(), currency.FormatConversionLog(res))
			return nil
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "Amount to convert")
	cmd.Flags().StringVar(&from, "from", "", "Source currency code")
	cmd.Flags().StringVar(&to, "to", "", "Target currency code")
	cmd.Flags().StringVar(&date, "date", "", "Rate date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (c *cli) addRateCmd() *cobra.Command {
	var (
		rate     float64
		from, to string
		date     string
	)

	cmd := &cobra.Command{
		Use:   "add-rate",
		Short: "Record an exchange rate for a currency pair and date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if rate <= 0 {
				return errors.New("--rate must be positive")
			}
			d, err := parseDateFlag(date)
			if err != nil {
				return err
			}

			store, cleanup, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			from, to := strings.ToUpper(strings.TrimSpace(from)), strings.ToUpper(strings.TrimSpace(to))
			if err := store.UpsertRate(ctx, from, to, d, rate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s/%s = %g on %s\n", from, to, rate, d)
			return nil
		},
	}
	cmd.Flags().Float64Var(&rate, "rate", 0, "Units of --to per unit of --from")
	cmd.Flags().StringVar(&from, "from", "", "Source currency code")
	cmd.Flags().StringVar(&to, "to", "", "Target currency code")
	cmd.Flags().StringVar(&date, "date", "", "Rate date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("rate")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
