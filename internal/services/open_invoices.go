package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fatura/internal/core"
)

// OpenInvoices computes, for every (account, owner) pair present in entries,
// the total of the period that is open at now. Pairs owing exactly zero are left
// out. The result never depends on a reporting period chosen elsewhere.
func OpenInvoices(entries []core.LedgerEntry, accounts *core.AccountBook, now time.Time) []core.OpenInvoice {
	type pairInfo struct {
		account string // display name, first seen
		owner   string
	}
	pairs := make(map[AccountOwner]pairInfo)
	for _, e := range entries {
		k := ByAccountOwner(e)
		if _, ok := pairs[k]; !ok {
			pairs[k] = pairInfo{account: strings.TrimSpace(e.Account), owner: k.Owner}
		}
	}

	out := make([]core.OpenInvoice, 0, len(pairs))
	for k, info := range pairs {
		account := accounts.Lookup(info.account)
		open := OpenPeriod(account, now)
		total := Total(entries, func(e core.LedgerEntry) bool {
			return e.BillingPeriod == open && ByAccountOwner(e) == k
		})
		if total.IsZero() {
			continue
		}
		out = append(out, core.OpenInvoice{
			Account:       info.account,
			Owner:         info.owner,
			BillingPeriod: open,
			Total:         total,
			DueDisplay:    fmt.Sprintf("%d/%02d", account.DueDay(), int(open.Month)),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := core.NormalizeAccount(out[i].Account), core.NormalizeAccount(out[j].Account)
		if ai != aj {
			return ai < aj
		}
		return out[i].Owner < out[j].Owner
	})
	return out
}

// InvoicesByAccount folds open invoices of different owners into one total per account.
func InvoicesByAccount(invoices []core.OpenInvoice) []core.AccountTotal {
	totals := make(map[string]decimal.Decimal)
	names := make(map[string]string)
	order := make([]string, 0)
	for _, inv := range invoices {
		key := core.NormalizeAccount(inv.Account)
		if _, seen := names[key]; !seen {
			names[key] = inv.Account
			order = append(order, key)
		}
		totals[key] = totals[key].Add(inv.Total)
	}
	out := make([]core.AccountTotal, 0, len(order))
	for _, key := range order {
		out = append(out, core.AccountTotal{Account: names[key], Total: totals[key]})
	}
	return out
}
