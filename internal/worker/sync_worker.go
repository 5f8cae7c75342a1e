// Package worker mirrors the SQLite ledger into Google Sheets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fatura/internal/amqp"
	"fatura/internal/core"
	"fatura/internal/sheets"
	"fatura/internal/storage"
)

// LedgerStore is the part of the SQLite repository the worker needs.
type LedgerStore interface {
	EntriesByPurchase(ctx context.Context, purchaseID string) ([]storage.StoredEntry, error)
	PendingPurchases(ctx context.Context, limit int) ([]string, error)
	ClaimedPurchases(ctx context.Context, limit int) ([]string, error)
	ClaimPurchase(ctx context.Context, purchaseID string) (int, error)
	ReleasePurchase(ctx context.Context, purchaseID string) error
	MarkPurchaseSynced(ctx context.Context, purchaseID string) error
	MarkPurchaseSyncError(ctx context.Context, purchaseID string) error
	ReplaceBudget(ctx context.Context, limits []core.BudgetLimit) error
}

var _ LedgerStore = (*storage.SQLiteRepository)(nil)

// SyncWorker copies pending purchases to the spreadsheet and mirrors the
// spreadsheet budget back into SQLite.
type SyncWorker struct {
	store     LedgerStore
	target    sheets.LedgerAppender
	budget    sheets.BudgetReader
	batchSize int
}

func NewSyncWorker(store LedgerStore, target sheets.LedgerAppender, budget sheets.BudgetReader, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{store: store, target: target, budget: budget, batchSize: batchSize}
}

// HandleSyncMessage syncs the purchase named by msg.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"purchase_id", msg.PurchaseID,
		"entries", msg.Entries)
	return w.syncPurchase(ctx, msg.PurchaseID)
}

// ProcessPending syncs up to one batch of purchases still pending. It covers
// messages lost between the web process and the broker.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.processPending(ctx, w.batchSize)
	return err
}

// StartupSyncCheck runs a larger pending sweep when the worker starts. Claims
// left by an interrupted run are reported, not retried: their rows may already
// be in the sheet.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	stuck, err := w.store.ClaimedPurchases(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if len(stuck) > 0 {
		slog.WarnContext(ctx, "Purchases left mid-sync by a previous run, check the sheet before releasing",
			"count", len(stuck), "purchase_ids", stuck)
	}

	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced, "errors", failed)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.store.PendingPurchases(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending purchases: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending purchases", "count", len(pending))
	for _, id := range pending {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}
		if err := w.syncPurchase(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to sync purchase", "purchase_id", id, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// syncPurchase appends the pending rows of one purchase to the spreadsheet.
// The rows are claimed first, so a message and a sweep racing on the same
// purchase mirror it once. A purchase that reached the sheet only in part is
// flagged instead of retried, since a retry would duplicate the written rows.
func (w *SyncWorker) syncPurchase(ctx context.Context, purchaseID string) error {
	claimed, err := w.store.ClaimPurchase(ctx, purchaseID)
	if err != nil {
		return fmt.Errorf("claim purchase %s: %w", purchaseID, err)
	}
	if claimed == 0 {
		slog.DebugContext(ctx, "Nothing to sync", "purchase_id", purchaseID)
		return nil
	}

	stored, err := w.store.EntriesByPurchase(ctx, purchaseID)
	if err != nil {
		w.release(ctx, purchaseID)
		return fmt.Errorf("load purchase %s: %w", purchaseID, err)
	}
	entries := make([]core.LedgerEntry, 0, len(stored))
	for _, s := range stored {
		if s.SyncStatus == storage.SyncClaimed {
			entries = append(entries, s.Entry)
		}
	}

	written, err := appendAll(ctx, w.target, entries)
	if err != nil {
		if written > 0 {
			if markErr := w.store.MarkPurchaseSyncError(ctx, purchaseID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "purchase_id", purchaseID, "error", markErr)
			}
			return &core.PartialWriteError{PurchaseID: purchaseID, Written: written, Total: len(entries), Err: err}
		}
		w.release(ctx, purchaseID)
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.store.MarkPurchaseSynced(ctx, purchaseID); err != nil {
		// The rows stay claimed, so no sweep will append them again.
		slog.ErrorContext(ctx, "Failed to mark as synced", "purchase_id", purchaseID, "error", err)
	}
	slog.InfoContext(ctx, "Purchase synced to sheets", "purchase_id", purchaseID, "rows", written)
	return nil
}

// release returns the rows to the sweep after a failure that wrote nothing.
func (w *SyncWorker) release(ctx context.Context, purchaseID string) {
	if err := w.store.ReleasePurchase(context.WithoutCancel(ctx), purchaseID); err != nil {
		slog.ErrorContext(ctx, "Failed to release purchase", "purchase_id", purchaseID, "error", err)
	}
}

func appendAll(ctx context.Context, target sheets.LedgerAppender, entries []core.LedgerEntry) (int, error) {
	if batch, ok := target.(sheets.LedgerBatchAppender); ok {
		return batch.AppendEntries(ctx, entries)
	}
	for i, e := range entries {
		if _, err := target.AppendEntry(ctx, e); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

// MirrorBudget copies the spreadsheet budget into SQLite. An empty sheet leaves
// the local budget untouched.
func (w *SyncWorker) MirrorBudget(ctx context.Context) error {
	if w.budget == nil {
		return errors.New("no budget source configured")
	}
	limits, err := w.budget.ListBudget(ctx)
	if err != nil {
		return fmt.Errorf("read budget from sheets: %w", err)
	}
	if len(limits) == 0 {
		slog.WarnContext(ctx, "Spreadsheet budget is empty, keeping local copy")
		return nil
	}
	if err := w.store.ReplaceBudget(ctx, limits); err != nil {
		return fmt.Errorf("store budget: %w", err)
	}
	slog.InfoContext(ctx, "Budget mirrored from sheets", "categories", len(limits))
	return nil
}
