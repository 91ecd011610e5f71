//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lykimq/MoneyWise/pkg/budget"
	"github.com/lykimq/MoneyWise/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing and returns its URL.
func setupRedis(t *testing.T) (string, testcontainers.Container) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return fmt.Sprintf("redis://%s:%s", host, port.Port()), container
}

// setupPostgres creates a PostgreSQL container and returns a pool with the budget schema.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "moneywise",
			"POSTGRES_PASSWORD": "moneywise",
			"POSTGRES_DB":       "moneywise",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://moneywise:moneywise@%s:%s/moneywise?sslmode=disable", host, port.Port())
	pool, err := budget.OpenPostgres(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("Failed to open Postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := budget.NewPostgresRepository(pool).EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return pool
}

func newCacheConfig(url string) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.RedisURL = url
	cfg.MaxConnections = 3
	cfg.ConnectionTimeout = time.Second
	cfg.RetryBaseDelay = 10 * time.Millisecond
	cfg.RetryMaxDelay = 50 * time.Millisecond
	return cfg
}

// TestBudgetFlow covers read-through caching and invalidation on writes
// against real Redis and PostgreSQL.
func TestBudgetFlow(t *testing.T) {
	ctx := context.Background()
	redisURL, _ := setupRedis(t)
	db := setupPostgres(t)

	cfg := newCacheConfig(redisURL)
	svc, err := cache.New(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer svc.Close()

	bc, err := budget.NewCache(svc, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	budgets := budget.NewService(budget.NewPostgresRepository(db), bc, zerolog.Nop())

	groupID, categoryID := uuid.New(), uuid.New()
	if _, err := db.Exec(ctx, `INSERT INTO category_groups (id, name, sort_order) VALUES ($1::uuid, 'Living', 1)`, groupID.String()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(ctx, `INSERT INTO categories (id, name, group_id) VALUES ($1::uuid, 'Rent', $2::uuid)`, categoryID.String(), groupID.String()); err != nil {
		t.Fatal(err)
	}

	month, year := 1, 2024
	created, err := budgets.Create(ctx, budget.CreateRequest{
		CategoryID: categoryID,
		Planned:    decimal.RequireFromString("1000"),
		Currency:   "USD",
		Month:      &month,
		Year:       &year,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p := budget.Period{Year: 2024, Month: time.January, Currency: "USD"}
	summary, err := budgets.Summary(ctx, p)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !summary.Overview.Planned.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("planned = %s, want 1000", summary.Overview.Planned)
	}
	if len(summary.Categories) != 1 || summary.Categories[0].CategoryName != "Rent" || summary.Categories[0].GroupName != "Living" {
		t.Errorf("categories = %+v", summary.Categories)
	}

	client := redis.NewClient(&redis.Options{Addr: redisURL[len("redis://"):]})
	defer client.Close()

	ttl, err := client.TTL(ctx, "budget:overview:2024:01:USD").Result()
	if err != nil || ttl <= 0 || ttl > cfg.OverviewTTL {
		t.Errorf("overview TTL = %v, %v; want within (0, %v]", ttl, err, cfg.OverviewTTL)
	}
	ttl, err = client.TTL(ctx, "budget:categories:2024:01:USD").Result()
	if err != nil || ttl <= 0 || ttl > cfg.CollectionTTL {
		t.Errorf("categories TTL = %v, %v; want within (0, %v]", ttl, err, cfg.CollectionTTL)
	}

	planned := decimal.RequireFromString("1500")
	if _, err := budgets.Update(ctx, created.ID, budget.UpdateRequest{Planned: &planned}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	n, err := client.Exists(ctx, "budget:overview:2024:01:USD", "budget:categories:2024:01:USD").Result()
	if err != nil || n != 0 {
		t.Errorf("period keys after update: %d present, err %v", n, err)
	}

	summary, err = budgets.Summary(ctx, p)
	if err != nil {
		t.Fatalf("Summary after update: %v", err)
	}
	if !summary.Overview.Planned.Equal(planned) {
		t.Errorf("planned after update = %s, want 1500", summary.Overview.Planned)
	}

	if _, err := budgets.Budget(ctx, uuid.New()); err == nil {
		t.Error("Expected ErrNotFound for unknown budget")
	}
}

// TestCacheFailsOpen stops Redis mid-test and checks reads degrade to misses.
func TestCacheFailsOpen(t *testing.T) {
	ctx := context.Background()
	redisURL, container := setupRedis(t)

	cfg := newCacheConfig(redisURL)
	cfg.BreakerFailures = 0
	svc, err := cache.New(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer svc.Close()

	typed := cache.NewTyped[string](svc, nil)
	if err := typed.Put(ctx, "test:key", "value", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v, ok, _ := typed.Get(ctx, "test:key"); !ok || v != "value" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	stopTimeout := 5 * time.Second
	if err := container.Stop(ctx, &stopTimeout); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	start := time.Now()
	_, ok, err := typed.Get(ctx, "test:key")
	if err != nil || ok {
		t.Errorf("Get with Redis down = %v, %v; want miss without error", ok, err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("degraded read took %v", elapsed)
	}

	if err := typed.Delete(ctx, "test:key"); err != nil {
		t.Errorf("Delete with Redis down = %v, want nil", err)
	}
	if err := typed.Put(ctx, "test:key", "value", time.Minute); err == nil {
		t.Error("Put with Redis down should fail")
	}
}
