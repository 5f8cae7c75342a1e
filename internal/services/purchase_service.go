package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fatura/internal/core"
	applog "fatura/internal/log"
	"fatura/internal/sheets"
)

// Receipt describes a recorded purchase.
type Receipt struct {
	PurchaseID string             `json:"purchase_id"`
	Entries    []core.LedgerEntry `json:"entries"`
	Refs       []string           `json:"refs,omitempty"`
}

// PurchaseService is the write path: split a purchase and append its rows.
type PurchaseService struct {
	appender   sheets.LedgerAppender
	accounts   *core.AccountBook
	invalidate func()

	// mu keeps the rows of one purchase contiguous in the ledger.
	mu sync.Mutex
}

// NewPurchaseService wires the write path. invalidate, when set, is called after
// any write that reached the store.
func NewPurchaseService(appender sheets.LedgerAppender, accounts *core.AccountBook, invalidate func()) *PurchaseService {
	return &PurchaseService{
		appender:   appender,
		accounts:   accounts,
		invalidate: invalidate,
	}
}

// Record splits p into installments and appends them in order.
//
// When the store stops after some but not all rows, a *core.PartialWriteError is
// returned carrying how many rows made it. Written rows are not rolled back.
func (s *PurchaseService) Record(ctx context.Context, p core.Purchase) (Receipt, error) {
	if s.appender == nil {
		return Receipt{}, fmt.Errorf("ledger store not configured")
	}
	account := s.accounts.Lookup(p.Account)
	entries, err := SplitInstallments(p, account)
	if err != nil {
		return Receipt{}, err
	}
	purchaseID := entries[0].PurchaseID

	s.mu.Lock()
	refs, written, err := s.appendAll(ctx, entries)
	s.mu.Unlock()

	if written > 0 && s.invalidate != nil {
		s.invalidate()
	}
	if err != nil {
		if written > 0 && written < len(entries) {
			slog.ErrorContext(ctx, "Purchase partially written",
				"purchase_id", purchaseID,
				"written", written,
				"total", len(entries),
				"error", err)
			return Receipt{PurchaseID: purchaseID, Entries: entries[:written], Refs: refs},
				&core.PartialWriteError{PurchaseID: purchaseID, Written: written, Total: len(entries), Err: err}
		}
		return Receipt{}, fmt.Errorf("append purchase %s: %w", purchaseID, err)
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).LogPurchaseRecorded(ctx,
		purchaseID, account.Name, p.Owner, p.Category, p.Amount.String(), len(entries))

	return Receipt{PurchaseID: purchaseID, Entries: entries, Refs: refs}, nil
}

func (s *PurchaseService) appendAll(ctx context.Context, entries []core.LedgerEntry) ([]string, int, error) {
	if batch, ok := s.appender.(sheets.LedgerBatchAppender); ok {
		written, err := batch.AppendEntries(ctx, entries)
		return nil, written, err
	}

	refs := make([]string, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return refs, i, err
		}
		ref, err := s.appender.AppendEntry(ctx, e)
		if err != nil {
			return refs, i, err
		}
		refs = append(refs, ref)
	}
	return refs, len(entries), nil
}
