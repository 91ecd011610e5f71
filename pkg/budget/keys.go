package budget

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Key namespaces. Each is a distinct prefix so keys never collide across kinds.
const (
	NamespaceOverview   = "budget:overview"
	NamespaceCategories = "budget:categories"
	NamespaceItem       = "budget:item"
)

// OverviewKey generates the cache key of a period overview.
// Format: budget:overview:YYYY:MM[:CUR]
//
// Example:
//
//	budget:overview:2024:01:USD
func OverviewKey(p Period) string {
	return periodKey(NamespaceOverview, p)
}

// CategoriesKey generates the cache key of a period's category breakdown.
// Format: budget:categories:YYYY:MM[:CUR]
func CategoriesKey(p Period) string {
	return periodKey(NamespaceCategories, p)
}

// ItemKey generates the cache key of a single budget.
// Format: budget:item:<uuid>
func ItemKey(id uuid.UUID) string {
	return NamespaceItem + ":" + id.String()
}

// PeriodKeys returns every key scoped to p, in invalidation order.
func PeriodKeys(p Period) []string {
	return []string{OverviewKey(p), CategoriesKey(p)}
}

func periodKey(namespace string, p Period) string {
	parts := []string{
		namespace,
		fmt.Sprintf("%04d", p.Year),
		fmt.Sprintf("%02d", int(p.Month)),
	}

	// Currency only when filtered
	if c := normalizeCurrency(p.Currency); c != "" {
		parts = append(parts, c)
	}

	return strings.Join(parts, ":")
}
