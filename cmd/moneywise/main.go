package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/lykimq/MoneyWise/pkg/budget"
	"github.com/lykimq/MoneyWise/pkg/cache"
	"github.com/lykimq/MoneyWise/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "moneywise",
		Short:        "MoneyWise budgeting backend",
		Long:         "HTTP API for monthly budgets with a Redis read-through cache in front of PostgreSQL",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := logging.ConfigFromEnv(os.Getenv)
			cfg.Output = cmd.ErrOrStderr()
			logging.Setup(cfg)
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		cacheCmd(),
	)

	return rootCmd
}

// backend holds the connections shared by the commands.
type backend struct {
	cacheConfig cache.Config
	pool        *cache.Pool
	cache       *cache.Service
}

// openCache connects to Redis using the cache environment variables.
func openCache(ctx context.Context, logger zerolog.Logger) (*backend, error) {
	cfg := cache.ConfigFromEnv(logger)

	svc, pool, err := cache.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &backend{
		cacheConfig: cfg,
		pool:        pool,
		cache:       svc,
	}, nil
}

// budgetCache binds the budget read models to the cache.
func (b *backend) budgetCache(logger zerolog.Logger) (*budget.Cache, error) {
	return budget.NewCache(b.cache, b.cacheConfig, logger)
}

func (b *backend) Close() error {
	return b.cache.Close()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
