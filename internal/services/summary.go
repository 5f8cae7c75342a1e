package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fatura/internal/core"
)

// AvailablePeriods lists the distinct billing periods in ascending order.
func AvailablePeriods(entries []core.LedgerEntry) []core.Period {
	seen := make(map[core.Period]struct{})
	out := make([]core.Period, 0)
	for _, e := range entries {
		if e.BillingPeriod.IsZero() {
			continue
		}
		if _, ok := seen[e.BillingPeriod]; ok {
			continue
		}
		seen[e.BillingPeriod] = struct{}{}
		out = append(out, e.BillingPeriod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// DefaultPeriod picks the current calendar month when it has entries, otherwise
// the earliest known period, otherwise the current month.
func DefaultPeriod(periods []core.Period, now time.Time) core.Period {
	current := core.PeriodOf(now)
	for _, p := range periods {
		if p == current {
			return current
		}
	}
	if len(periods) > 0 {
		return periods[0]
	}
	return current
}

// Summarize returns the headline numbers of a period. The budget total covers
// every limit, whatever the period.
func Summarize(entries []core.LedgerEntry, limits []core.BudgetLimit, period core.Period) core.PeriodSummary {
	inPeriod := InPeriod(period)
	spent := Total(entries, inPeriod)
	budget := decimal.Zero
	for _, l := range limits {
		budget = budget.Add(l.Limit)
	}
	count := 0
	for _, e := range entries {
		if inPeriod(e) {
			count++
		}
	}
	return core.PeriodSummary{
		Period:      period,
		TotalSpent:  spent,
		TotalBudget: budget,
		Balance:     budget.Sub(spent),
		EntryCount:  count,
	}
}

// Statement returns the period's entries ordered by posted date.
func Statement(entries []core.LedgerEntry, period core.Period) []core.LedgerEntry {
	out := make([]core.LedgerEntry, 0)
	for _, e := range entries {
		if e.BillingPeriod == period {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PostedDate.Equal(out[j].PostedDate.Time) {
			return out[i].PostedDate.Before(out[j].PostedDate.Time)
		}
		return out[i].InstallmentIndex < out[j].InstallmentIndex
	})
	return out
}
