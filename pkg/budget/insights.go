package budget

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Insight types.
const (
	InsightWarning    = "warning"
	InsightSuggestion = "suggestion"
	InsightPositive   = "positive"
)

var (
	hundred     = decimal.NewFromInt(100)
	nearLimitAt = decimal.NewFromInt(90)
)

// GenerateInsights derives the hints shown with a period summary:
// one warning per overspent category, a note on what is left overall,
// and a suggestion when any category is close to its limit.
func GenerateInsights(ov Overview, categories []CategoryBudget) []Insight {
	insights := make([]Insight, 0, len(categories)+2)

	for _, c := range categories {
		if c.Percentage.GreaterThan(hundred) {
			over := c.Percentage.Sub(hundred).Round(1)
			insights = append(insights, Insight{
				Type:    InsightWarning,
				Message: fmt.Sprintf("You're %s%% over budget on %s", over.String(), c.CategoryName),
				Icon:    "warning-outline",
				Color:   "#FF6B6B",
			})
		}
	}

	switch {
	case ov.Remaining.IsPositive():
		insights = append(insights, Insight{
			Type:    InsightPositive,
			Message: fmt.Sprintf("You have %s remaining for other expenses", money(ov.Remaining, ov.Currency)),
			Icon:    "checkmark-circle-outline",
			Color:   "#4ECDC4",
		})
	case ov.Remaining.IsNegative():
		insights = append(insights, Insight{
			Type:    InsightWarning,
			Message: fmt.Sprintf("You're %s over your total budget", money(ov.Remaining.Abs(), ov.Currency)),
			Icon:    "warning-outline",
			Color:   "#FF6B6B",
		})
	}

	for _, c := range categories {
		if c.Percentage.GreaterThan(nearLimitAt) {
			insights = append(insights, Insight{
				Type:    InsightSuggestion,
				Message: "Consider reviewing your spending in categories near budget limits",
				Icon:    "bulb-outline",
				Color:   "#007AFF",
			})
			break
		}
	}

	return insights
}

func money(amount decimal.Decimal, currency string) string {
	if currency == "" {
		return amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + currency
}
