// Package budget evaluates a month's category figures against their budgets
// and reports categories that need attention.
package budget

import (
	"math"
	"strings"

	"github.com/dvloznov/finance-bridge/internal/ledger"
	"github.com/dvloznov/finance-bridge/internal/money"
)

// Row is one category's figures for a month. Spent is outflow-negative.
type Row struct {
	CategoryID string
	Name       string
	Budgeted   int64
	Spent      int64
	Available  int64
	Outflow    int64
	Ratio      float64
	Income     bool
}

// NewRow computes the derived figures for a category. A category with no
// month entry has budgeted and spent of zero.
func NewRow(cat ledger.Category, entry ledger.MonthCategory) Row {
	outflow := -entry.Spent
	if outflow < 0 {
		outflow = 0
	}

	var ratio float64
	switch {
	case entry.Budgeted > 0:
		ratio = float64(outflow) / float64(entry.Budgeted)
	case outflow > 0:
		ratio = math.Inf(1)
	}

	return Row{
		CategoryID: cat.ID,
		Name:       cat.Name,
		Budgeted:   entry.Budgeted,
		Spent:      entry.Spent,
		Available:  entry.Budgeted + entry.Spent,
		Outflow:    outflow,
		Ratio:      ratio,
		Income:     cat.IsIncome,
	}
}

// Rows joins the category list with a month snapshot, one row per category.
func Rows(categories []ledger.Category, month *ledger.BudgetMonth) []Row {
	entries := make(map[string]ledger.MonthCategory, len(month.Categories))
	for _, mc := range month.Categories {
		entries[mc.ID] = mc
	}

	rows := make([]Row, 0, len(categories))
	for _, cat := range categories {
		rows = append(rows, NewRow(cat, entries[cat.ID]))
	}
	return rows
}

// Buckets holds the classified rows. A row may appear in more than one bucket.
type Buckets struct {
	Overspent  []Row
	NearLimit  []Row
	Unbudgeted []Row
}

// Empty reports whether nothing needs attention.
func (b Buckets) Empty() bool {
	return len(b.Overspent) == 0 && len(b.NearLimit) == 0 && len(b.Unbudgeted) == 0
}

// Classify sorts rows into buckets. Income rows are never alerted on; their
// "spent" is money received. Categories without a budget are only reported
// through the unbudgeted bucket, and only when includeZeroBudget is set.
func Classify(rows []Row, threshold float64, includeZeroBudget bool) Buckets {
	var b Buckets
	for _, r := range rows {
		if r.Income {
			continue
		}
		if r.Budgeted > 0 && r.Available < 0 {
			b.Overspent = append(b.Overspent, r)
		}
		// Budgeted > 0 keeps the ratio finite.
		if r.Budgeted > 0 && r.Available >= 0 && r.Ratio >= threshold {
			b.NearLimit = append(b.NearLimit, r)
		}
		if includeZeroBudget && r.Budgeted == 0 && r.Outflow > 0 {
			b.Unbudgeted = append(b.Unbudgeted, r)
		}
	}
	return b
}

// Message renders the buckets as one line, e.g.
// "Overspent: Groceries £105.00/£100.00 | Near limit: Fuel £95.00/£100.00".
func (b Buckets) Message() string {
	var sections []string
	if len(b.Overspent) > 0 {
		sections = append(sections, "Overspent: "+join(b.Overspent, withBudget))
	}
	if len(b.NearLimit) > 0 {
		sections = append(sections, "Near limit: "+join(b.NearLimit, withBudget))
	}
	if len(b.Unbudgeted) > 0 {
		sections = append(sections, "Unbudgeted spend: "+join(b.Unbudgeted, spentOnly))
	}
	return strings.Join(sections, " | ")
}

func withBudget(r Row) string {
	return r.Name + " " + money.Format(r.Outflow) + "/" + money.Format(r.Budgeted)
}

func spentOnly(r Row) string {
	return r.Name + " " + money.Format(r.Outflow)
}

func join(rows []Row, render func(Row) string) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = render(r)
	}
	return strings.Join(parts, ", ")
}

// Totals sums a month's figures.
type Totals struct {
	Budgeted  int64
	Spent     int64
	Available int64
}

// Sum totals every row, income included.
func Sum(rows []Row) Totals {
	var t Totals
	for _, r := range rows {
		t.Budgeted += r.Budgeted
		t.Spent += r.Spent
	}
	t.Available = t.Budgeted + t.Spent
	return t
}

// Message renders totals as "Budgeted £70.00 | Spent £50.00 | Available £20.00".
func (t Totals) Message() string {
	return "Budgeted " + money.Format(t.Budgeted) +
		" | Spent " + money.Format(-t.Spent) +
		" | Available " + money.Format(t.Available)
}
