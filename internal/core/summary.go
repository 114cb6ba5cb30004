package core

import "github.com/shopspring/decimal"

// Totals holds the values derived from a list's items. They are computed on
// read and never persisted.
type Totals struct {
	Spent     Money
	Remaining Money // negative when over budget
	Ratio     decimal.Decimal
	Status    BudgetStatus
	ItemCount int
	Units     int
}

// Snapshot is a read-only view of a list with its derived totals.
type Snapshot struct {
	List   List
	Totals Totals
}

// ComputeTotals derives totals for the list.
func ComputeTotals(l List) Totals {
	spent := l.Spent()
	units := 0
	for _, it := range l.Items {
		units += it.Quantity
	}
	return Totals{
		Spent:     spent,
		Remaining: l.Budget.Sub(spent),
		Ratio:     UsageRatio(spent, l.Budget),
		Status:    Classify(spent, l.Budget),
		ItemCount: len(l.Items),
		Units:     units,
	}
}

// Summarize builds a snapshot of l.
func Summarize(l List) Snapshot {
	return Snapshot{List: l, Totals: ComputeTotals(l)}
}
