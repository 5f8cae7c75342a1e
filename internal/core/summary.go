package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusOK         Status = "OK"
	StatusWarning    Status = "Warning"
	StatusExceeded   Status = "Exceeded"
	StatusUnbudgeted Status = "Unbudgeted"
)

// Status classifies a category's spend against its limit.
type Status string

// ReconciliationRow compares one category's actual spend with its limit.
type ReconciliationRow struct {
	Category  string          `json:"category"`
	Limit     decimal.Decimal `json:"limit"`
	Actual    decimal.Decimal `json:"actual"`
	Remaining decimal.Decimal `json:"remaining"`
	Status    Status          `json:"status"`
}

// OpenInvoice is what is currently owed on one account for one owner.
type OpenInvoice struct {
	Account       string          `json:"account"`
	Owner         string          `json:"owner"`
	BillingPeriod Period          `json:"billing_period"`
	Total         decimal.Decimal `json:"total"`
	DueDisplay    string          `json:"due"`
}

// AccountTotal is an amount aggregated by account name.
type AccountTotal struct {
	Account string          `json:"account"`
	Total   decimal.Decimal `json:"total"`
}

// PeriodSummary holds the headline numbers of a selected period.
type PeriodSummary struct {
	Period      Period          `json:"period"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	TotalBudget decimal.Decimal `json:"total_budget"`
	Balance     decimal.Decimal `json:"balance"`
	EntryCount  int             `json:"entry_count"`
}

// Snapshot is an immutable copy of both stores taken for one report.
type Snapshot struct {
	Entries         []LedgerEntry `json:"entries"`
	Budget          []BudgetLimit `json:"budget"`
	FetchedAt       time.Time     `json:"fetched_at"`
	UnparsedAmounts int           `json:"unparsed_amounts"`
}
