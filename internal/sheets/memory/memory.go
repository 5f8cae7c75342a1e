// Package memory is an in-process ledger store for development and tests.
package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fatura/internal/core"
	"fatura/internal/sheets"
)

// BudgetSeedFile is read from the data directory by NewFromFiles.
const BudgetSeedFile = "seed_budget.csv"

var (
	_ sheets.LedgerAppender      = (*Store)(nil)
	_ sheets.LedgerBatchAppender = (*Store)(nil)
	_ sheets.LedgerReader        = (*Store)(nil)
	_ sheets.BudgetReader        = (*Store)(nil)
)

type Store struct {
	mu      sync.Mutex
	entries []core.LedgerEntry
	budget  []core.BudgetLimit
}

func New(budget []core.BudgetLimit) *Store {
	return &Store{budget: append([]core.BudgetLimit(nil), budget...)}
}

// NewFromFiles seeds the budget from base/seed_budget.csv when present.
func NewFromFiles(base string) *Store {
	path := filepath.Join(base, BudgetSeedFile)
	budget, err := readBudget(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Budget seed ignored", "path", path, "error", err)
	}
	return New(budget)
}

// AppendEntry stores e and returns a synthetic row reference.
func (s *Store) AppendEntry(_ context.Context, e core.LedgerEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return fmt.Sprintf("mem:%d", len(s.entries)), nil
}

// AppendEntries adds all rows under one lock.
func (s *Store) AppendEntries(ctx context.Context, entries []core.LedgerEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return len(entries), nil
}

func (s *Store) ListEntries(_ context.Context) ([]core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LedgerEntry(nil), s.entries...), nil
}

func (s *Store) ListBudget(_ context.Context) ([]core.BudgetLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.BudgetLimit(nil), s.budget...), nil
}

// ReplaceBudget swaps the whole budget table.
func (s *Store) ReplaceBudget(_ context.Context, limits []core.BudgetLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = append([]core.BudgetLimit(nil), limits...)
	return nil
}

// readBudget parses "Categoria,Limite" rows. A header row and # comments are skipped.
func readBudget(path string) ([]core.BudgetLimit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBudgetCSV(f)
}

func parseBudgetCSV(r io.Reader) ([]core.BudgetLimit, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []core.BudgetLimit
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read budget seed: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		cat := strings.TrimSpace(rec[0])
		if cat == "" {
			continue
		}
		limit, err := core.ParseAmountStrict(rec[1])
		if err != nil {
			if line == 1 {
				continue // header
			}
			slog.Warn("Budget seed row with unreadable limit", "line", line, "category", cat)
		}
		out = append(out, core.BudgetLimit{Category: cat, Limit: limit})
	}
}
