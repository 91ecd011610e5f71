package warmup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lykimq/MoneyWise/pkg/budget"
	"github.com/rs/zerolog/log"
)

// Config holds warmer configuration
type Config struct {
	// MaxConcurrency is the maximum number of periods loaded in parallel.
	// Each worker holds one database connection while loading.
	MaxConcurrency int
	// Timeout per period
	Timeout time.Duration
	// Buffer size for channels (default: number of periods)
	BufferSize int
}

// DefaultConfig returns the default warmer configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        10 * time.Second,
	}
}

// PeriodWarmer loads one period into the cache. *budget.Service implements it.
type PeriodWarmer interface {
	Warm(ctx context.Context, p budget.Period) error
}

// Failure is a period that could not be warmed.
type Failure struct {
	Period budget.Period
	Err    error
}

// Report summarizes a warm run.
type Report struct {
	Requested int
	Warmed    int
	Failures  []Failure
	Duration  time.Duration
}

// Err joins every failure into one error, or returns nil.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Period, f.Err))
	}
	return errors.Join(errs...)
}

// Warmer loads many periods in parallel using a worker pool
type Warmer struct {
	target PeriodWarmer
	config Config
}

// NewWarmer creates a new warmer
func NewWarmer(target PeriodWarmer, config Config) *Warmer {
	def := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}

	return &Warmer{
		target: target,
		config: config,
	}
}

type result struct {
	period budget.Period
	err    error
}

// WarmAll warms every period and reports the outcome of each. A failed
// period does not stop the others. The returned error is non-nil when ctx
// was cancelled before every period ran; the report then covers only the
// periods that did.
func (w *Warmer) WarmAll(ctx context.Context, periods []budget.Period) (Report, error) {
	start := time.Now()
	report := Report{Requested: len(periods)}
	if len(periods) == 0 {
		return report, nil
	}

	bufferSize := w.config.BufferSize
	if bufferSize <= 0 {
		bufferSize = len(periods)
	}
	workers := min(w.config.MaxConcurrency, len(periods))

	log.Info().
		Int("periods", len(periods)).
		Int("workers", workers).
		Msg("Starting cache warmup")

	queue := make(chan budget.Period, bufferSize)
	results := make(chan result, bufferSize)

	// Fill queue until ctx is done
	go func() {
		defer close(queue)
		for _, p := range periods {
			if ctx.Err() != nil {
				return
			}
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go w.worker(ctx, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			report.Failures = append(report.Failures, Failure{Period: res.period, Err: res.err})
			continue
		}
		report.Warmed++
	}
	report.Duration = time.Since(start)

	if ran := report.Warmed + len(report.Failures); ran < len(periods) {
		log.Warn().
			Int("warmed", report.Warmed).
			Int("requested", len(periods)).
			Msg("Cache warmup cancelled - returning partial report")
		return report, fmt.Errorf("warmup cancelled (%d/%d periods ran): %w", ran, len(periods), ctx.Err())
	}

	log.Info().
		Int("warmed", report.Warmed).
		Int("failed", len(report.Failures)).
		Dur("duration", report.Duration).
		Msg("Cache warmup complete")

	return report, nil
}

// worker warms periods from the queue
func (w *Warmer) worker(ctx context.Context, queue <-chan budget.Period, results chan<- result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for p := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("periods_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		pctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		err := w.target.Warm(pctx, p)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Str("period", p.String()).
				Msg("Period warmup failed")
		}

		results <- result{period: p, err: err}
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("periods_processed", processed).
			Msg("Worker completed")
	}
}

// RecentPeriods returns the n months ending with the month of now, newest
// first, filtered by currency ("" for all currencies).
func RecentPeriods(now time.Time, n int, currency string) []budget.Period {
	cur := budget.CurrentPeriod(now)
	first := time.Date(cur.Year, cur.Month, 1, 0, 0, 0, 0, time.UTC)

	periods := make([]budget.Period, 0, n)
	for i := 0; i < n; i++ {
		m := first.AddDate(0, -i, 0)
		periods = append(periods, budget.Period{Year: m.Year(), Month: m.Month(), Currency: currency})
	}
	return periods
}
