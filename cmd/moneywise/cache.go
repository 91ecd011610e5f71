package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lykimq/MoneyWise/pkg/budget"
	"github.com/lykimq/MoneyWise/pkg/logging"
	"github.com/lykimq/MoneyWise/pkg/warmup"
	"github.com/spf13/cobra"
)

const commandTimeout = 30 * time.Second

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the budget cache",
	}

	cmd.AddCommand(
		cachePingCmd(),
		cacheInvalidateCmd(),
		cacheWarmCmd(),
	)

	return cmd
}

func cachePingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check every pooled Redis connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			be, err := openCache(ctx, logging.NewLogger("cache"))
			if err != nil {
				return err
			}
			defer be.Close()

			if err := be.pool.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "PONG (%d connections)\n", be.pool.Size())
			return nil
		},
	}
}

// periodFlags are shared by invalidate and warm.
type periodFlags struct {
	year     int
	month    int
	months   []int
	currency string
}

func (f periodFlags) periods() ([]budget.Period, error) {
	months := f.months
	if f.month != 0 {
		months = []int{f.month}
	}

	periods := make([]budget.Period, 0, len(months))
	for _, m := range months {
		p, err := budget.NewPeriod(f.year, time.Month(m), f.currency)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, nil
}

func allMonths() []int {
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
}

func cacheInvalidateCmd() *cobra.Command {
	var f periodFlags

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached overview and categories of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			periods, err := f.periods()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			be, err := openCache(ctx, logging.NewLogger("cache"))
			if err != nil {
				return err
			}
			defer be.Close()

			var keys []string
			for _, p := range periods {
				keys = append(keys, budget.PeriodKeys(p)...)
			}
			if err := be.cache.Delete(ctx, keys...); err != nil {
				return fmt.Errorf("invalidate: %w", err)
			}

			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&f.year, "year", 0, "Budget year (required)")
	cmd.Flags().IntVar(&f.month, "month", 0, "Budget month 1-12 (required)")
	cmd.Flags().StringVar(&f.currency, "currency", "", "Three-letter currency code; empty for all currencies")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")

	return cmd
}

func cacheWarmCmd() *cobra.Command {
	var (
		f           periodFlags
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Load months of a year from the database into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			periods, err := f.periods()
			if err != nil {
				return err
			}

			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := cmd.Context()
			db, err := budget.OpenPostgres(ctx, dsn, int32(max(concurrency, 1))) //nolint:gosec // small
			if err != nil {
				return err
			}
			defer db.Close()

			be, err := openCache(ctx, logging.NewLogger("cache"))
			if err != nil {
				return err
			}
			defer be.Close()

			bc, err := be.budgetCache(logging.NewLogger("budget"))
			if err != nil {
				return err
			}
			svc := budget.NewService(budget.NewPostgresRepository(db), bc, logging.NewLogger("budget"))

			w := warmup.NewWarmer(svc, warmup.Config{MaxConcurrency: concurrency, Timeout: commandTimeout})
			report, err := w.WarmAll(ctx, periods)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "warmed %d/%d periods in %s\n", report.Warmed, report.Requested, report.Duration.Round(time.Millisecond))
			return report.Err()
		},
	}

	cmd.Flags().IntVar(&f.year, "year", 0, "Budget year (required)")
	cmd.Flags().IntSliceVar(&f.months, "months", allMonths(), "Months to warm, 1-12")
	cmd.Flags().StringVar(&f.currency, "currency", "", "Three-letter currency code; empty for all currencies")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Periods loaded in parallel")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}
