// Package api serves the MoneyWise budget endpoints over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lykimq/MoneyWise/pkg/budget"
	"github.com/lykimq/MoneyWise/pkg/metrics"
	"github.com/lykimq/MoneyWise/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// Budgets is the budget service behind the handlers. *budget.Service implements it.
type Budgets interface {
	Summary(ctx context.Context, p budget.Period) (budget.Summary, error)
	Overview(ctx context.Context, p budget.Period) (budget.Overview, error)
	Budget(ctx context.Context, id uuid.UUID) (budget.Budget, error)
	Create(ctx context.Context, req budget.CreateRequest) (budget.Budget, error)
	Update(ctx context.Context, id uuid.UUID, req budget.UpdateRequest) (budget.Budget, error)
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config wires the router.
type Config struct {
	Budgets Budgets

	// Limiter guards budget mutations. Nil disables rate limiting.
	Limiter *ratelimit.Limiter

	// Cache and Database are checked by /health. Nil skips the check.
	Cache    Pinger
	Database Pinger

	Logger zerolog.Logger

	// Now returns the current time; used for default periods. Defaults to time.Now.
	Now func() time.Time
}

type handler struct {
	budgets  Budgets
	cache    Pinger
	database Pinger
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRouter builds the HTTP router:
//
//	GET  /health
//	GET  /metrics
//	GET  /api/budgets            ?month=&year=&currency=
//	GET  /api/budgets/overview   ?month=&year=&currency=
//	GET  /api/budgets/:id
//	POST /api/budgets
//	PUT  /api/budgets/:id
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Budgets == nil {
		panic("api: budget service cannot be nil")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	h := &handler{
		budgets:  cfg.Budgets,
		cache:    cfg.Cache,
		database: cfg.Database,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	group := router.Group("/api/budgets")
	if cfg.Limiter != nil {
		group.Use(ratelimit.Middleware(cfg.Limiter, ratelimit.TransactionBudgetModification))
	}
	group.GET("", h.listBudgets)
	group.GET("/overview", h.overview)
	group.GET("/:id", h.getBudget)
	group.POST("", h.createBudget)
	group.PUT("/:id", h.updateBudget)

	return router
}

// requestLogger logs and measures every request.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		metrics.ObserveRequest(c.Request.Method, c.FullPath(), status, duration)

		event := logger.Debug()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", duration).
			Msg("HTTP request")
	}
}

// NewServer wraps router in an http.Server with conservative timeouts.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
