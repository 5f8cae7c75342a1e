package sheets

import (
	"context"

	"fatura/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerAppender appends one ledger row. Stores are append-only: rows are
	// never updated or deleted through these ports.
	LedgerAppender interface {
		AppendEntry(ctx context.Context, e core.LedgerEntry) (rowRef string, err error)
	}

	// LedgerBatchAppender is implemented by stores that can append all rows of a
	// purchase in one call. written reports how many rows reached the store.
	LedgerBatchAppender interface {
		AppendEntries(ctx context.Context, entries []core.LedgerEntry) (written int, err error)
	}

	// LedgerReader returns every ledger row in store order.
	LedgerReader interface {
		ListEntries(ctx context.Context) ([]core.LedgerEntry, error)
	}

	// BudgetReader returns the budget limits per category.
	BudgetReader interface {
		ListBudget(ctx context.Context) ([]core.BudgetLimit, error)
	}
)
