// Package budget implements monthly budgets per spending category: the
// cached read paths, the invalidation rules on writes, and the summary
// insights shown next to them.
package budget

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a budget does not exist.
	ErrNotFound = errors.New("budget not found")

	// ErrInvalidPeriod is returned for a month outside 1-12, a year outside
	// 1-9999 or a currency that is not a three-letter code.
	ErrInvalidPeriod = errors.New("invalid budget period")

	// ErrInvalidRequest is returned for malformed create or update requests.
	ErrInvalidRequest = errors.New("invalid budget request")
)

// Period scopes aggregated budget data. An empty Currency covers all currencies.
type Period struct {
	Year     int
	Month    time.Month
	Currency string
}

// NewPeriod validates and normalizes a period. Currency is upper-cased.
func NewPeriod(year int, month time.Month, currency string) (Period, error) {
	p := Period{Year: year, Month: month, Currency: normalizeCurrency(currency)}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// CurrentPeriod returns the period containing now, across all currencies.
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	return Period{Year: now.Year(), Month: now.Month()}
}

// Validate reports whether the period can be used as a cache scope.
func (p Period) Validate() error {
	if p.Month < time.January || p.Month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, p.Month)
	}
	if p.Year < 1 || p.Year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	if p.Currency != "" && !validCurrency(p.Currency) {
		return fmt.Errorf("%w: currency %q", ErrInvalidPeriod, p.Currency)
	}
	return nil
}

// AllCurrencies returns the same period without a currency filter.
func (p Period) AllCurrencies() Period {
	p.Currency = ""
	return p
}

// String formats the period as YYYY-MM[/CUR].
func (p Period) String() string {
	s := fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
	if p.Currency != "" {
		s += "/" + p.Currency
	}
	return s
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Overview is the aggregate of every budget in a period.
type Overview struct {
	Planned   decimal.Decimal `json:"planned"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	Currency  string          `json:"currency"`
}

// CategoryBudget is one budget line of a period with its category details.
type CategoryBudget struct {
	ID            uuid.UUID       `json:"id"`
	CategoryName  string          `json:"category_name"`
	GroupName     string          `json:"group_name,omitempty"`
	CategoryColor string          `json:"category_color"`
	GroupColor    string          `json:"group_color,omitempty"`
	Planned       decimal.Decimal `json:"planned"`
	Spent         decimal.Decimal `json:"spent"`
	Remaining     decimal.Decimal `json:"remaining"`
	Percentage    decimal.Decimal `json:"percentage"`
	Currency      string          `json:"currency"`
}

// Budget is the amount planned for one category in one month.
type Budget struct {
	ID         uuid.UUID       `json:"id"`
	Month      int             `json:"month"`
	Year       int             `json:"year"`
	CategoryID uuid.UUID       `json:"category_id"`
	Planned    decimal.Decimal `json:"planned"`
	Spent      decimal.Decimal `json:"spent"`
	Carryover  decimal.Decimal `json:"carryover"`
	Currency   string          `json:"currency"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Period returns the period the budget belongs to, filtered by its currency.
func (b Budget) Period() Period {
	return Period{Year: b.Year, Month: time.Month(b.Month), Currency: normalizeCurrency(b.Currency)}
}

// Remaining returns planned - spent + carryover.
func Remaining(planned, spent, carryover decimal.Decimal) decimal.Decimal {
	return planned.Sub(spent).Add(carryover)
}

// Percentage returns spent as a percentage of planned, or zero when nothing is planned.
func Percentage(spent, planned decimal.Decimal) decimal.Decimal {
	if !planned.IsPositive() {
		return decimal.Zero
	}
	return spent.Div(planned).Mul(decimal.NewFromInt(100))
}

// Insight is a short hint shown next to a budget summary.
type Insight struct {
	Type    string `json:"type"` // "warning", "suggestion", "positive"
	Message string `json:"message"`
	Icon    string `json:"icon"`
	Color   string `json:"color"`
}

// Summary is a period overview with its category lines and insights.
type Summary struct {
	Overview   Overview         `json:"overview"`
	Categories []CategoryBudget `json:"categories"`
	Insights   []Insight        `json:"insights"`
}

// CreateRequest creates a budget. Month and Year default to the current month.
type CreateRequest struct {
	CategoryID uuid.UUID       `json:"category_id"`
	Planned    decimal.Decimal `json:"planned"`
	Currency   string          `json:"currency"`
	Month      *int            `json:"month,omitempty"`
	Year       *int            `json:"year,omitempty"`
}

// Normalize fills defaults from now and validates the request.
func (r CreateRequest) Normalize(now time.Time) (CreateRequest, error) {
	cur := CurrentPeriod(now)
	if r.Month == nil {
		m := int(cur.Month)
		r.Month = &m
	}
	if r.Year == nil {
		y := cur.Year
		r.Year = &y
	}
	r.Currency = normalizeCurrency(r.Currency)

	if r.CategoryID == uuid.Nil {
		return r, fmt.Errorf("%w: category_id is required", ErrInvalidRequest)
	}
	if r.Planned.IsNegative() {
		return r, fmt.Errorf("%w: planned must not be negative", ErrInvalidRequest)
	}
	if _, err := NewPeriod(*r.Year, time.Month(*r.Month), r.Currency); err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.Currency == "" {
		return r, fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}
	return r, nil
}

// UpdateRequest changes a budget. Nil fields are left untouched.
type UpdateRequest struct {
	Planned   *decimal.Decimal `json:"planned,omitempty"`
	Carryover *decimal.Decimal `json:"carryover,omitempty"`
}

// Validate checks the request changes something sensible.
func (r UpdateRequest) Validate() error {
	if r.Planned == nil && r.Carryover == nil {
		return fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
	}
	if r.Planned != nil && r.Planned.IsNegative() {
		return fmt.Errorf("%w: planned must not be negative", ErrInvalidRequest)
	}
	return nil
}
