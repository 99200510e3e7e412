package core

import "github.com/shopspring/decimal"

// CategorySummary aggregates the expenses of one category.
type CategorySummary struct {
	Category Category
	Count    int
	Total    decimal.Decimal
}

// Period echoes the month and year a statistic was requested for.
type Period struct {
	Month *int
	Year  *int
}

// Summarize partitions expenses by category following the order of
// Categories. Categories without expenses are left out. Each total is
// rounded on its own.
func Summarize(expenses []Expense) []CategorySummary {
	counts := make(map[Category]int, len(Categories))
	totals := make(map[Category]decimal.Decimal, len(Categories))
	for _, e := range expenses {
		counts[e.Category]++
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}

	out := make([]CategorySummary, 0, len(counts))
	for _, c := range Categories {
		n := counts[c]
		if n == 0 {
			continue
		}
		out = append(out, CategorySummary{
			Category: c,
			Count:    n,
			Total:    RoundAmount(totals[c]),
		})
	}
	return out
}
