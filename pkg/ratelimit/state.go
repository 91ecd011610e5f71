// Package ratelimit limits budget modifications per client with fixed
// windows counted in Redis. Counters are shared by every server instance,
// and an unreachable Redis lets requests through rather than failing them.
package ratelimit

import (
	"fmt"
	"time"
)

// Limits for budget modifications.
const (
	// BudgetModificationLimit is the number of requests allowed per window.
	BudgetModificationLimit = 30

	// Window is the length of one counting window.
	Window = 60 * time.Second

	// ExpiryBuffer keeps a window counter alive past the end of its window so
	// clock skew between instances cannot resurrect it.
	ExpiryBuffer = 60 * time.Second

	// KeyPrefix prefixes every counter key.
	KeyPrefix = "rate_limit"

	unknownDevice = "unknown"
)

// TransactionType names a class of rate limited operations.
type TransactionType string

// TransactionBudgetModification covers creating and updating budgets.
const TransactionBudgetModification TransactionType = "budget_modification"

// Limit returns the number of requests allowed per window.
// Budget modifications are the only limited transactions so far.
func (t TransactionType) Limit() int {
	return BudgetModificationLimit
}

// Key identifies the client a counter belongs to.
type Key struct {
	IP       string
	DeviceID string // optional, see ValidDeviceID
	Type     TransactionType
}

// RedisKey generates the counter key of the window starting at windowStart.
// Format: rate_limit:<ip>:<device|unknown>:<type>:<window unix seconds>
//
// Example:
//
//	rate_limit:192.168.1.1:device-123:budget_modification:1704067200
func (k Key) RedisKey(windowStart time.Time) string {
	device := k.DeviceID
	if device == "" {
		device = unknownDevice
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d", KeyPrefix, k.IP, device, k.Type, windowStart.Unix())
}

// ValidDeviceID reports whether id is 8-64 characters of letters, digits,
// hyphens and underscores.
func ValidDeviceID(id string) bool {
	if len(id) < 8 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int

	// ResetAt is the end of the current window.
	ResetAt time.Time

	// RetryAfter is how long a limited client should wait. Zero when allowed.
	RetryAfter time.Duration

	Type TransactionType

	// Degraded is set when the counter could not be read and the request was
	// allowed without counting.
	Degraded bool
}

// windowStart returns the start of the fixed window containing now.
func windowStart(now time.Time) time.Time {
	return now.Truncate(Window)
}

// newResult builds the result for the count-th request of the window starting at start.
func newResult(t TransactionType, count int, start, now time.Time) Result {
	limit := t.Limit()
	resetAt := start.Add(Window)

	if count > limit {
		retry := resetAt.Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retry,
			Type:       t,
		}
	}

	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count,
		ResetAt:   resetAt,
		Type:      t,
	}
}
