// Package adapters joins the SQLite store with the sync publisher.
package adapters

import (
	"context"
	"log/slog"

	"fatura/internal/core"
	"fatura/internal/sheets"
	"fatura/internal/storage"
)

// Publisher announces purchases waiting to be mirrored.
type Publisher interface {
	PublishLedgerSync(ctx context.Context, purchaseID string, entries int) error
}

var (
	_ sheets.LedgerAppender      = (*SQLiteAdapter)(nil)
	_ sheets.LedgerBatchAppender = (*SQLiteAdapter)(nil)
	_ sheets.LedgerReader        = (*SQLiteAdapter)(nil)
	_ sheets.BudgetReader        = (*SQLiteAdapter)(nil)
)

// SQLiteAdapter writes to SQLite and then publishes a sync message. Publish
// failures are logged only: the rows stay pending and the worker sweep picks
// them up.
type SQLiteAdapter struct {
	storage   *storage.SQLiteRepository
	publisher Publisher
}

// NewSQLiteAdapter accepts a nil publisher when AMQP is not configured.
func NewSQLiteAdapter(storage *storage.SQLiteRepository, publisher Publisher) *SQLiteAdapter {
	return &SQLiteAdapter{storage: storage, publisher: publisher}
}

func (a *SQLiteAdapter) AppendEntry(ctx context.Context, e core.LedgerEntry) (string, error) {
	ref, err := a.storage.AppendEntry(ctx, e)
	if err != nil {
		return "", err
	}
	a.publish(ctx, e.PurchaseID, 1)
	return ref, nil
}

func (a *SQLiteAdapter) AppendEntries(ctx context.Context, entries []core.LedgerEntry) (int, error) {
	n, err := a.storage.AppendEntries(ctx, entries)
	if err != nil || n == 0 {
		return n, err
	}
	a.publish(ctx, entries[0].PurchaseID, n)
	return n, nil
}

func (a *SQLiteAdapter) publish(ctx context.Context, purchaseID string, n int) {
	if a.publisher == nil || purchaseID == "" {
		return
	}
	if err := a.publisher.PublishLedgerSync(ctx, purchaseID, n); err != nil {
		slog.WarnContext(ctx, "Sync message not published, rows left for the sweep",
			"purchase_id", purchaseID, "error", err)
	}
}

func (a *SQLiteAdapter) ListEntries(ctx context.Context) ([]core.LedgerEntry, error) {
	return a.storage.ListEntries(ctx)
}

func (a *SQLiteAdapter) ListBudget(ctx context.Context) ([]core.BudgetLimit, error) {
	return a.storage.ListBudget(ctx)
}
