package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Repository is the system of record for budgets.
type Repository interface {
	// Overview sums every budget of p. A period without budgets yields zero amounts.
	Overview(ctx context.Context, p Period) (Overview, error)

	// Categories lists the budget lines of p ordered by group, then category name.
	Categories(ctx context.Context, p Period) ([]CategoryBudget, error)

	// Budget returns ErrNotFound when id does not exist.
	Budget(ctx context.Context, id uuid.UUID) (Budget, error)

	Create(ctx context.Context, req CreateRequest) (Budget, error)

	// Update returns ErrNotFound when id does not exist.
	Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (Budget, error)
}

// Service serves budgets from the cache, falling back to the repository,
// and keeps the cache consistent with writes.
type Service struct {
	repo   Repository
	cache  *Cache
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a budget service.
func NewService(repo Repository, c *Cache, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  c,
		logger: logger,
		now:    time.Now,
	}
}

// Summary returns the overview, category lines and insights of p. Overview
// and categories are only served from the cache when both are present;
// otherwise both are reloaded and cached again.
func (s *Service) Summary(ctx context.Context, p Period) (Summary, error) {
	ov, okOv := s.cache.Overview(ctx, p)
	cats, okCats := s.cache.Categories(ctx, p)

	if !okOv || !okCats {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			ov, err = s.repo.Overview(gctx, p)
			return err
		})
		g.Go(func() error {
			var err error
			cats, err = s.repo.Categories(gctx, p)
			return err
		})
		if err := g.Wait(); err != nil {
			return Summary{}, fmt.Errorf("load budget summary %s: %w", p, err)
		}

		s.cache.CacheOverview(ctx, p, ov)
		s.cache.CacheCategories(ctx, p, cats)
	}

	if cats == nil {
		cats = []CategoryBudget{}
	}

	return Summary{
		Overview:   ov,
		Categories: cats,
		Insights:   GenerateInsights(ov, cats),
	}, nil
}

// Overview returns the overview of p.
func (s *Service) Overview(ctx context.Context, p Period) (Overview, error) {
	ov, err := s.cache.LoadOverview(ctx, p, s.repo.Overview)
	if err != nil {
		return Overview{}, fmt.Errorf("load budget overview %s: %w", p, err)
	}
	return ov, nil
}

// Budget returns a single budget.
func (s *Service) Budget(ctx context.Context, id uuid.UUID) (Budget, error) {
	b, err := s.cache.LoadBudget(ctx, id, s.repo.Budget)
	if err != nil {
		return Budget{}, fmt.Errorf("load budget %s: %w", id, err)
	}
	return b, nil
}

// Create stores a new budget and drops the cached aggregates of its month.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Budget, error) {
	req, err := req.Normalize(s.now())
	if err != nil {
		return Budget{}, err
	}

	b, err := s.repo.Create(ctx, req)
	if err != nil {
		return Budget{}, fmt.Errorf("create budget: %w", err)
	}

	s.cache.InvalidatePeriods(ctx, b.Period(), b.Period().AllCurrencies())

	s.logger.Info().
		Str("budget_id", b.ID.String()).
		Str("period", b.Period().String()).
		Msg("Budget created")

	return b, nil
}

// Update changes a budget and drops its cached copy and the cached aggregates of its month.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (Budget, error) {
	if err := req.Validate(); err != nil {
		return Budget{}, err
	}

	b, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}

	s.cache.InvalidateBudget(ctx, id)
	s.cache.InvalidatePeriods(ctx, b.Period(), b.Period().AllCurrencies())

	s.logger.Info().
		Str("budget_id", id.String()).
		Str("period", b.Period().String()).
		Msg("Budget updated")

	return b, nil
}

// Warm loads the overview and categories of p from the repository into the cache.
func (s *Service) Warm(ctx context.Context, p Period) error {
	ov, err := s.repo.Overview(ctx, p)
	if err != nil {
		return fmt.Errorf("warm overview %s: %w", p, err)
	}
	cats, err := s.repo.Categories(ctx, p)
	if err != nil {
		return fmt.Errorf("warm categories %s: %w", p, err)
	}

	s.cache.CacheOverview(ctx, p, ov)
	s.cache.CacheCategories(ctx, p, cats)
	return nil
}

// Invalidate drops the cached aggregates of p.
func (s *Service) Invalidate(ctx context.Context, p Period) {
	s.cache.InvalidatePeriod(ctx, p)
}
