package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lykimq/MoneyWise/internal/api"
	"github.com/lykimq/MoneyWise/pkg/budget"
	"github.com/lykimq/MoneyWise/pkg/logging"
	"github.com/lykimq/MoneyWise/pkg/ratelimit"
	"github.com/lykimq/MoneyWise/pkg/warmup"
	"github.com/spf13/cobra"
)

// serverConfig is read from HOST, PORT, DATABASE_URL and DATABASE_MAX_CONNECTIONS.
type serverConfig struct {
	Addr           string
	DatabaseURL    string
	MaxDBConns     int32
	ShutdownPeriod time.Duration
}

func loadServerConfig() (serverConfig, error) {
	port, err := getEnvInt("PORT", 3000)
	if err != nil {
		return serverConfig{}, err
	}
	if port < 1 || port > 65535 {
		return serverConfig{}, fmt.Errorf("PORT: %d out of range", port)
	}

	maxConns, err := getEnvInt("DATABASE_MAX_CONNECTIONS", 5)
	if err != nil {
		return serverConfig{}, err
	}
	if maxConns < 1 {
		return serverConfig{}, fmt.Errorf("DATABASE_MAX_CONNECTIONS: must be positive, got %d", maxConns)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return serverConfig{}, errors.New("DATABASE_URL is required")
	}

	return serverConfig{
		Addr:           net.JoinHostPort(getEnv("HOST", "0.0.0.0"), strconv.Itoa(port)),
		DatabaseURL:    dsn,
		MaxDBConns:     int32(maxConns), //nolint:gosec // positive, small
		ShutdownPeriod: 10 * time.Second,
	}, nil
}

func serveCmd() *cobra.Command {
	var (
		warmMonths int
		noLimit    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("server")

			cfg, err := loadServerConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := budget.OpenPostgres(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := budget.NewPostgresRepository(db)
			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}

			be, err := openCache(ctx, logging.NewLogger("cache"))
			if err != nil {
				return err
			}
			defer be.Close()

			bc, err := be.budgetCache(logging.NewLogger("budget"))
			if err != nil {
				return err
			}
			svc := budget.NewService(repo, bc, logging.NewLogger("budget"))

			var limiter *ratelimit.Limiter
			if !noLimit {
				limiter = ratelimit.NewLimiter(be.pool, logging.NewLogger("ratelimit"))
			}

			router := api.NewRouter(api.Config{
				Budgets:  svc,
				Limiter:  limiter,
				Cache:    be.cache,
				Database: api.PingFunc(db.Ping),
				Logger:   logging.NewLogger("api"),
			})
			server := api.NewServer(cfg.Addr, router)

			if warmMonths > 0 {
				go func() {
					w := warmup.NewWarmer(svc, warmup.DefaultConfig())
					if _, err := w.WarmAll(ctx, warmup.RecentPeriods(time.Now(), warmMonths, "")); err != nil {
						logger.Warn().Err(err).Msg("Startup cache warmup incomplete")
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.Addr).Msg("Starting MoneyWise server")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&warmMonths, "warm-months", 0, "Warm the cache for this many recent months at startup")
	cmd.Flags().BoolVar(&noLimit, "no-rate-limit", false, "Disable rate limiting of budget mutations")

	return cmd
}
