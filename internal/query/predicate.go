// Package query turns a request filter into a store predicate.
//
// Build is pure: the current time and the month-search window are passed in.
// The resulting Predicate can be evaluated in memory or rendered as a
// parameterised SQL WHERE clause for the relational stores.
package query

import (
	"fmt"
	"strings"
	"time"

	"despesas/internal/core"
)

// Window bounds the years searched when a month is given without a year.
type Window struct {
	YearsBack  int
	YearsAhead int
}

// DefaultWindow searches from five years ago up to two years ahead.
func DefaultWindow() Window {
	return Window{YearsBack: 5, YearsAhead: 2}
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From core.Date
	To   core.Date
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d core.Date) bool {
	return !d.Time.Before(r.From.Time) && !d.Time.After(r.To.Time)
}

// Predicate selects expenses. An empty Ranges slice means any date matches;
// otherwise the date must fall inside at least one range.
type Predicate struct {
	Category *core.Category
	Ranges   []DateRange
}

// Build maps f to a predicate. Month values outside 1-12 are ignored.
func Build(f core.Filter, now time.Time, w Window) Predicate {
	p := Predicate{Category: f.Category}

	month := 0
	if f.Month != nil && *f.Month >= 1 && *f.Month <= 12 {
		month = *f.Month
	}

	switch {
	case month != 0 && f.Year == nil:
		current := now.Year()
		for y := current - w.YearsBack; y <= current+w.YearsAhead; y++ {
			p.Ranges = append(p.Ranges, monthRange(y, month))
		}
	case f.Year != nil && month != 0:
		p.Ranges = []DateRange{monthRange(*f.Year, month)}
	case f.Year != nil:
		p.Ranges = []DateRange{{
			From: core.NewDate(*f.Year, 1, 1),
			To:   core.NewDate(*f.Year, 12, 31),
		}}
	}
	return p
}

func monthRange(year, month int) DateRange {
	return DateRange{
		From: core.NewDate(year, month, 1),
		To:   core.LastDayOfMonth(year, month),
	}
}

// Matches evaluates the predicate against a single expense.
func (p Predicate) Matches(e core.Expense) bool {
	if p.Category != nil && e.Category != *p.Category {
		return false
	}
	if len(p.Ranges) == 0 {
		return true
	}
	for _, r := range p.Ranges {
		if r.Contains(e.Date) {
			return true
		}
	}
	return false
}

// Dialect adapts the rendered SQL to a database.
type Dialect interface {
	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string
	// DateArg converts a date to the driver value compared against the
	// date column.
	DateArg(d core.Date) any
}

// Where renders the predicate as a WHERE clause body over the columns
// "category" and "date". It returns "1=1" when nothing is filtered.
func (p Predicate) Where(d Dialect) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}

	if p.Category != nil {
		clauses = append(clauses, "category = "+next(string(*p.Category)))
	}
	if len(p.Ranges) > 0 {
		ors := make([]string, 0, len(p.Ranges))
		for _, r := range p.Ranges {
			ors = append(ors, fmt.Sprintf("(date >= %s AND date <= %s)",
				next(d.DateArg(r.From)), next(d.DateArg(r.To))))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}
