// Package storage is the SQLite ledger store. Rows are written here first and
// mirrored to Google Sheets by the sync worker.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"fatura/internal/core"
	"fatura/internal/sheets"
)

const (
	SyncPending = "pending"
	SyncClaimed = "syncing"
	SyncDone    = "synced"
	SyncError   = "error"

	isoDate = "2006-01-02"
)

var (
	_ sheets.LedgerAppender      = (*SQLiteRepository)(nil)
	_ sheets.LedgerBatchAppender = (*SQLiteRepository)(nil)
	_ sheets.LedgerReader        = (*SQLiteRepository)(nil)
	_ sheets.BudgetReader        = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db *sql.DB
}

// StoredEntry is a ledger row with its database id and sync state.
type StoredEntry struct {
	ID         int64
	Entry      core.LedgerEntry
	SyncStatus string
	CreatedAt  time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const insertEntry = `INSERT INTO ledger_entries (
    purchase_id, posted_date, billing_year, billing_month, owner, kind, account,
    amount, installment_count, installment_index, category, description
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, ex execer, e core.LedgerEntry) (int64, error) {
	res, err := ex.ExecContext(ctx, insertEntry,
		e.PurchaseID,
		e.PostedDate.Format(isoDate),
		e.BillingPeriod.Year,
		int(e.BillingPeriod.Month),
		e.Owner,
		string(e.Kind),
		e.Account,
		e.Amount.String(),
		e.InstallmentCount,
		e.InstallmentIndex,
		e.Category,
		e.Description,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AppendEntry stores one row and returns its id.
func (r *SQLiteRepository) AppendEntry(ctx context.Context, e core.LedgerEntry) (string, error) {
	id, err := insert(ctx, r.db, e)
	if err != nil {
		return "", fmt.Errorf("insert ledger entry: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// AppendEntries stores all rows in one transaction, so either every row is
// written or none is.
func (r *SQLiteRepository) AppendEntries(ctx context.Context, entries []core.LedgerEntry) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, e := range entries {
		if _, err := insert(ctx, tx, e); err != nil {
			return 0, fmt.Errorf("insert ledger entry %d/%d: %w", i+1, len(entries), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ledger entries: %w", err)
	}

	purchaseID := ""
	if len(entries) > 0 {
		purchaseID = entries[0].PurchaseID
	}
	slog.InfoContext(ctx, "Ledger entries saved to SQLite", "purchase_id", purchaseID, "count", len(entries))
	return len(entries), nil
}

const selectEntries = `SELECT id, purchase_id, posted_date, billing_year, billing_month, owner, kind,
    account, amount, installment_count, installment_index, category, description,
    sync_status, created_at
FROM ledger_entries`

func (r *SQLiteRepository) ListEntries(ctx context.Context) ([]core.LedgerEntry, error) {
	stored, err := r.queryEntries(ctx, selectEntries+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := make([]core.LedgerEntry, len(stored))
	for i, s := range stored {
		out[i] = s.Entry
	}
	return out, nil
}

// EntriesByPurchase returns the rows of one purchase in installment order.
func (r *SQLiteRepository) EntriesByPurchase(ctx context.Context, purchaseID string) ([]StoredEntry, error) {
	return r.queryEntries(ctx, selectEntries+` WHERE purchase_id = ? ORDER BY installment_index, id`, purchaseID)
}

func (r *SQLiteRepository) queryEntries(ctx context.Context, query string, args ...any) ([]StoredEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []StoredEntry
	for rows.Next() {
		var (
			s                          StoredEntry
			posted, kind, amt, created string
			year, month                int
		)
		if err := rows.Scan(&s.ID, &s.Entry.PurchaseID, &posted, &year, &month,
			&s.Entry.Owner, &kind, &s.Entry.Account, &amt,
			&s.Entry.InstallmentCount, &s.Entry.InstallmentIndex,
			&s.Entry.Category, &s.Entry.Description, &s.SyncStatus, &created); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if t, err := time.Parse(isoDate, posted); err == nil {
			s.Entry.PostedDate = core.DateOf(t)
		}
		s.CreatedAt = parseTimestamp(created)
		s.Entry.BillingPeriod = core.NewPeriod(year, time.Month(month))
		s.Entry.Kind = core.ParseKind(kind)
		d, err := decimal.NewFromString(amt)
		if err != nil {
			s.Entry.AmountUnparsed = true
		}
		s.Entry.Amount = d
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListBudget(ctx context.Context) ([]core.BudgetLimit, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category, limit_amount FROM budget_limits ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query budget: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetLimit
	for rows.Next() {
		var cat, amt string
		if err := rows.Scan(&cat, &amt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, core.BudgetLimit{Category: cat, Limit: core.ParseAmount(amt)})
	}
	return out, rows.Err()
}

// ReplaceBudget swaps the budget table for limits. Duplicate categories are summed.
func (r *SQLiteRepository) ReplaceBudget(ctx context.Context, limits []core.BudgetLimit) error {
	merged := make(map[string]decimal.Decimal)
	order := make([]string, 0, len(limits))
	for _, l := range limits {
		cat := strings.TrimSpace(l.Category)
		if cat == "" {
			continue
		}
		if _, ok := merged[cat]; !ok {
			order = append(order, cat)
		}
		merged[cat] = merged[cat].Add(l.Limit)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM budget_limits`); err != nil {
		return fmt.Errorf("clear budget: %w", err)
	}
	for _, cat := range order {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budget_limits (category, limit_amount) VALUES (?, ?)`,
			cat, merged[cat].String()); err != nil {
			return fmt.Errorf("insert budget %q: %w", cat, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit budget: %w", err)
	}
	slog.InfoContext(ctx, "Budget replaced", "categories", len(order))
	return nil
}

// PendingPurchases lists purchase ids with rows not yet mirrored, oldest first.
func (r *SQLiteRepository) PendingPurchases(ctx context.Context, limit int) ([]string, error) {
	return r.purchasesWithStatus(ctx, SyncPending, limit)
}

// ClaimedPurchases lists purchases a sync left in the claimed state. Their rows
// may or may not be in the sheet.
func (r *SQLiteRepository) ClaimedPurchases(ctx context.Context, limit int) ([]string, error) {
	return r.purchasesWithStatus(ctx, SyncClaimed, limit)
}

func (r *SQLiteRepository) purchasesWithStatus(ctx context.Context, status string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT purchase_id FROM ledger_entries
WHERE sync_status = ?
GROUP BY purchase_id
ORDER BY MIN(id)
LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s purchases: %w", status, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s purchase: %w", status, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClaimPurchase moves the pending rows of a purchase to the claimed state and
// reports how many it moved. The update is a single statement, so of two
// concurrent claims only one gets the rows.
func (r *SQLiteRepository) ClaimPurchase(ctx context.Context, purchaseID string) (int, error) {
	return r.transition(ctx, purchaseID, SyncPending, SyncClaimed)
}

// ReleasePurchase hands claimed rows back to the pending sweep.
func (r *SQLiteRepository) ReleasePurchase(ctx context.Context, purchaseID string) error {
	_, err := r.transition(ctx, purchaseID, SyncClaimed, SyncPending)
	return err
}

func (r *SQLiteRepository) transition(ctx context.Context, purchaseID, from, to string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET sync_status = ? WHERE purchase_id = ? AND sync_status = ?`,
		to, purchaseID, from)
	if err != nil {
		return 0, fmt.Errorf("move purchase %s from %s to %s: %w", purchaseID, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// MarkPurchaseSynced flags every row of the purchase as mirrored.
func (r *SQLiteRepository) MarkPurchaseSynced(ctx context.Context, purchaseID string) error {
	return r.setSyncStatus(ctx, purchaseID, SyncDone)
}

// MarkPurchaseSyncError flags the purchase so the sweep stops retrying it.
func (r *SQLiteRepository) MarkPurchaseSyncError(ctx context.Context, purchaseID string) error {
	if err := r.setSyncStatus(ctx, purchaseID, SyncError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Purchase marked with sync error", "purchase_id", purchaseID)
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, purchaseID, status string) error {
	var syncedAt any
	if status == SyncDone {
		syncedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET sync_status = ?, synced_at = ? WHERE purchase_id = ?`,
		status, syncedAt, purchaseID)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("purchase %s: %w", purchaseID, ErrNotFound)
	}
	return nil
}

// parseTimestamp accepts both the driver's RFC 3339 rendering and SQLite's CURRENT_TIMESTAMP text.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ErrNotFound is returned when a purchase id has no rows.
var ErrNotFound = errors.New("not found")
