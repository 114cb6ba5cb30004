package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	StatusOK         BudgetStatus = "ok"
	StatusWarning    BudgetStatus = "warning"
	StatusCritical   BudgetStatus = "critical"
	StatusOverBudget BudgetStatus = "over_budget"
)

// BudgetStatus is the advisory classification of spent against budget.
type BudgetStatus string

var (
	warningThreshold  = decimal.RequireFromString("0.70")
	criticalThreshold = decimal.RequireFromString("0.95")
)

// Classify maps a total against its budget to a status. A total above the
// budget is over_budget; otherwise the usage ratio decides:
// below 0.70 ok, below 0.95 warning, from 0.95 critical.
func Classify(total, budget Money) BudgetStatus {
	if total.GreaterThan(budget) {
		return StatusOverBudget
	}
	r := UsageRatio(total, budget)
	switch {
	case r.LessThan(warningThreshold):
		return StatusOK
	case r.LessThan(criticalThreshold):
		return StatusWarning
	default:
		return StatusCritical
	}
}

// CheckAddition is the hard gate run before an item is committed: the
// prospective total may reach the budget but never exceed it.
func CheckAddition(current, budget, line Money) error {
	prospective := current.Add(line)
	if prospective.GreaterThan(budget) {
		return fmt.Errorf("%w: total %s would exceed budget %s", ErrOverBudget, prospective, budget)
	}
	return nil
}

// Alerting reports whether the status deserves a notification.
func (s BudgetStatus) Alerting() bool {
	return s == StatusWarning || s == StatusCritical || s == StatusOverBudget
}

func (s BudgetStatus) String() string {
	return string(s)
}
