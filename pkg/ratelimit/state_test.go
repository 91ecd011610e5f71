package ratelimit

import (
	"strings"
	"testing"
	"time"
)

func TestKey_RedisKey(t *testing.T) {
	start := time.Unix(1704067200, 0)

	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "with device",
			key:  Key{IP: "192.168.1.1", DeviceID: "device-123", Type: TransactionBudgetModification},
			want: "rate_limit:192.168.1.1:device-123:budget_modification:1704067200",
		},
		{
			name: "without device",
			key:  Key{IP: "10.0.0.1", Type: TransactionBudgetModification},
			want: "rate_limit:10.0.0.1:unknown:budget_modification:1704067200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.RedisKey(start); got != tt.want {
				t.Errorf("RedisKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_RedisKeyChangesPerWindow(t *testing.T) {
	key := Key{IP: "10.0.0.1", Type: TransactionBudgetModification}
	now := time.Unix(1704067230, 0)

	current := key.RedisKey(windowStart(now))
	next := key.RedisKey(windowStart(now.Add(Window)))

	if current == next {
		t.Errorf("consecutive windows share key %q", current)
	}
}

func TestValidDeviceID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"device-123", true},
		{"abc_DEF_0", true},
		{"short", false},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
		{"has space!", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidDeviceID(tt.id); got != tt.want {
			t.Errorf("ValidDeviceID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Unix(1704067259, 500)
	if got := windowStart(now); got.Unix() != 1704067200 {
		t.Errorf("windowStart() = %d, want 1704067200", got.Unix())
	}
}

func TestNewResult(t *testing.T) {
	start := time.Unix(1704067200, 0)
	now := start.Add(20 * time.Second)

	tests := []struct {
		name          string
		count         int
		wantAllowed   bool
		wantRemaining int
		wantRetry     time.Duration
	}{
		{name: "first request", count: 1, wantAllowed: true, wantRemaining: 29},
		{name: "at the limit", count: 30, wantAllowed: true, wantRemaining: 0},
		{name: "over the limit", count: 31, wantAllowed: false, wantRemaining: 0, wantRetry: 40 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newResult(TransactionBudgetModification, tt.count, start, now)

			if res.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", res.Allowed, tt.wantAllowed)
			}
			if res.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", res.Remaining, tt.wantRemaining)
			}
			if res.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %v, want %v", res.RetryAfter, tt.wantRetry)
			}
			if !res.ResetAt.Equal(start.Add(Window)) {
				t.Errorf("ResetAt = %v, want %v", res.ResetAt, start.Add(Window))
			}
			if res.Limit != BudgetModificationLimit {
				t.Errorf("Limit = %d, want %d", res.Limit, BudgetModificationLimit)
			}
		})
	}
}

func TestNewResult_RetryAfterAtLeastOneSecond(t *testing.T) {
	start := time.Unix(1704067200, 0)
	now := start.Add(Window - time.Millisecond)

	res := newResult(TransactionBudgetModification, 31, start, now)
	if res.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", res.RetryAfter)
	}
}
