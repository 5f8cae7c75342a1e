package services

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fatura/internal/core"
)

var (
	warningNumerator   = decimal.NewFromInt(8)
	warningDenominator = decimal.NewFromInt(10)
)

// Reconcile compares the period's actual spend per category with the budget.
//
// Categories with spend but no limit and categories with a limit but no spend
// both appear, the missing side being zero. Rows where both are zero are dropped.
func Reconcile(entries []core.LedgerEntry, limits []core.BudgetLimit, period core.Period) []core.ReconciliationRow {
	actual := SumBy(entries, ByCategory, InPeriod(period))

	limitByCategory := make(map[string]decimal.Decimal)
	for _, l := range limits {
		cat := strings.TrimSpace(l.Category)
		limitByCategory[cat] = limitByCategory[cat].Add(l.Limit)
	}

	categories := make(map[string]struct{}, len(actual)+len(limitByCategory))
	for c := range actual {
		categories[c] = struct{}{}
	}
	for c := range limitByCategory {
		categories[c] = struct{}{}
	}

	rows := make([]core.ReconciliationRow, 0, len(categories))
	for c := range categories {
		limit, spent := limitByCategory[c], actual[c]
		if limit.IsZero() && spent.IsZero() {
			continue
		}
		rows = append(rows, core.ReconciliationRow{
			Category:  c,
			Limit:     limit,
			Actual:    spent,
			Remaining: limit.Sub(spent),
			Status:    Classify(limit, spent),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Actual.Cmp(rows[j].Actual); c != 0 {
			return c > 0
		}
		return rows[i].Category < rows[j].Category
	})
	return rows
}

// Classify applies the traffic-light rule. The warning threshold is strict:
// spending exactly 80% of the limit is still OK.
func Classify(limit, actual decimal.Decimal) core.Status {
	switch {
	case limit.Sign() <= 0 && actual.Sign() > 0:
		return core.StatusUnbudgeted
	case limit.Sign() <= 0:
		return core.StatusOK
	case actual.Cmp(limit) >= 0:
		return core.StatusExceeded
	case actual.Mul(warningDenominator).Cmp(limit.Mul(warningNumerator)) > 0:
		return core.StatusWarning
	default:
		return core.StatusOK
	}
}
