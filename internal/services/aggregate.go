package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"fatura/internal/core"
)

// AccountOwner keys entries by normalized account and trimmed owner.
type AccountOwner struct {
	Account string
	Owner   string
}

// SumBy groups entries by key and sums their amounts. A nil predicate keeps every
// entry. An empty input yields an empty, non-nil map.
func SumBy[K comparable](entries []core.LedgerEntry, key func(core.LedgerEntry) K, keep func(core.LedgerEntry) bool) map[K]decimal.Decimal {
	out := make(map[K]decimal.Decimal)
	for _, e := range entries {
		if keep != nil && !keep(e) {
			continue
		}
		k := key(e)
		out[k] = out[k].Add(e.Amount)
	}
	return out
}

// Total sums the amounts of every entry kept by the predicate.
func Total(entries []core.LedgerEntry, keep func(core.LedgerEntry) bool) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if keep != nil && !keep(e) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total
}

func ByAccountOwner(e core.LedgerEntry) AccountOwner {
	return AccountOwner{Account: core.NormalizeAccount(e.Account), Owner: strings.TrimSpace(e.Owner)}
}

func ByCategory(e core.LedgerEntry) string {
	return strings.TrimSpace(e.Category)
}

func ByPeriod(e core.LedgerEntry) core.Period {
	return e.BillingPeriod
}

// InPeriod keeps entries billed in p.
func InPeriod(p core.Period) func(core.LedgerEntry) bool {
	return func(e core.LedgerEntry) bool { return e.BillingPeriod == p }
}
