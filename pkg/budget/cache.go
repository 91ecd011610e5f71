package budget

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lykimq/MoneyWise/pkg/cache"
	"github.com/lykimq/MoneyWise/pkg/codec"
	"github.com/rs/zerolog"
)

// Cache stores budget read models with a lifetime per kind of data:
// overviews live longest, category breakdowns shortest and single budgets
// in between. Writes and invalidations never fail the caller; problems are
// logged and the next read falls back to the database.
type Cache struct {
	svc        *cache.Service
	overviews  *cache.Typed[Overview]
	categories *cache.Typed[[]CategoryBudget]
	budgets    *cache.Typed[Budget]
	cfg        cache.Config
	logger     zerolog.Logger
}

// NewCache binds svc to the budget read models using the codec named in cfg.
func NewCache(svc *cache.Service, cfg cache.Config, logger zerolog.Logger) (*Cache, error) {
	ov, err := codec.New[Overview](cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("overview codec: %w", err)
	}
	cats, err := codec.New[[]CategoryBudget](cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("categories codec: %w", err)
	}
	items, err := codec.New[Budget](cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("budget codec: %w", err)
	}

	return &Cache{
		svc:        svc,
		overviews:  cache.NewTyped(svc, ov),
		categories: cache.NewTyped(svc, cats),
		budgets:    cache.NewTyped(svc, items),
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// CacheOverview stores the overview of p.
func (c *Cache) CacheOverview(ctx context.Context, p Period, ov Overview) {
	key := OverviewKey(p)
	if err := c.overviews.Put(ctx, key, ov, c.cfg.TTL(cache.TTLOverview)); err != nil {
		c.logWriteFailure(err, key)
	}
}

// Overview returns the cached overview of p.
func (c *Cache) Overview(ctx context.Context, p Period) (Overview, bool) {
	ov, ok, _ := c.overviews.Get(ctx, OverviewKey(p))
	return ov, ok
}

// LoadOverview returns the cached overview of p or loads and caches it.
func (c *Cache) LoadOverview(ctx context.Context, p Period, load func(context.Context, Period) (Overview, error)) (Overview, error) {
	return c.overviews.GetOrCompute(ctx, OverviewKey(p), c.cfg.TTL(cache.TTLOverview), func(ctx context.Context) (Overview, error) {
		return load(ctx, p)
	})
}

// CacheCategories stores the category breakdown of p.
func (c *Cache) CacheCategories(ctx context.Context, p Period, cats []CategoryBudget) {
	key := CategoriesKey(p)
	if err := c.categories.Put(ctx, key, cats, c.cfg.TTL(cache.TTLCollection)); err != nil {
		c.logWriteFailure(err, key)
	}
}

// Categories returns the cached category breakdown of p.
func (c *Cache) Categories(ctx context.Context, p Period) ([]CategoryBudget, bool) {
	cats, ok, _ := c.categories.Get(ctx, CategoriesKey(p))
	return cats, ok
}

// LoadCategories returns the cached category breakdown of p or loads and caches it.
func (c *Cache) LoadCategories(ctx context.Context, p Period, load func(context.Context, Period) ([]CategoryBudget, error)) ([]CategoryBudget, error) {
	return c.categories.GetOrCompute(ctx, CategoriesKey(p), c.cfg.TTL(cache.TTLCollection), func(ctx context.Context) ([]CategoryBudget, error) {
		return load(ctx, p)
	})
}

// CacheBudget stores a single budget.
func (c *Cache) CacheBudget(ctx context.Context, b Budget) {
	key := ItemKey(b.ID)
	if err := c.budgets.Put(ctx, key, b, c.cfg.TTL(cache.TTLItem)); err != nil {
		c.logWriteFailure(err, key)
	}
}

// Budget returns the cached budget id.
func (c *Cache) Budget(ctx context.Context, id uuid.UUID) (Budget, bool) {
	b, ok, _ := c.budgets.Get(ctx, ItemKey(id))
	return b, ok
}

// LoadBudget returns the cached budget id or loads and caches it.
func (c *Cache) LoadBudget(ctx context.Context, id uuid.UUID, load func(context.Context, uuid.UUID) (Budget, error)) (Budget, error) {
	return c.budgets.GetOrCompute(ctx, ItemKey(id), c.cfg.TTL(cache.TTLItem), func(ctx context.Context) (Budget, error) {
		return load(ctx, id)
	})
}

// InvalidatePeriod drops the overview and the category breakdown of p
// together so neither can be served against a fresher copy of the other.
func (c *Cache) InvalidatePeriod(ctx context.Context, p Period) {
	c.invalidate(ctx, PeriodKeys(p)...)
}

// InvalidatePeriods drops every key of every period in one batch.
func (c *Cache) InvalidatePeriods(ctx context.Context, periods ...Period) {
	seen := make(map[string]struct{}, 2*len(periods))
	keys := make([]string, 0, 2*len(periods))
	for _, p := range periods {
		for _, k := range PeriodKeys(p) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	c.invalidate(ctx, keys...)
}

// InvalidateBudget drops the cached budget id.
func (c *Cache) InvalidateBudget(ctx context.Context, id uuid.UUID) {
	c.invalidate(ctx, ItemKey(id))
}

func (c *Cache) invalidate(ctx context.Context, keys ...string) {
	if err := c.svc.Delete(ctx, keys...); err != nil {
		c.logger.Warn().
			Err(err).
			Strs("keys", keys).
			Msg("Budget cache invalidation failed")
	}
}

func (c *Cache) logWriteFailure(err error, key string) {
	c.logger.Warn().
		Err(err).
		Str("key", key).
		Msg("Budget cache write failed")
}
