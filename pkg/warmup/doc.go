// Package warmup preloads cached budget aggregates for many periods in
// parallel, typically right after a deploy or a cache flush.
//
// Example usage:
//
//	w := warmup.NewWarmer(budgetService, warmup.DefaultConfig())
//	report, err := w.WarmAll(ctx, warmup.RecentPeriods(time.Now(), 12, ""))
//
// The warmer:
//   - Spawns a worker pool (default 4 workers)
//   - Gives every period its own timeout
//   - Keeps going when a period fails and reports every failure
//   - Stops handing out periods once ctx is cancelled
package warmup
