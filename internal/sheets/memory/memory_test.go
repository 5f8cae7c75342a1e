package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fatura/internal/core"
)

func entry(desc string) core.LedgerEntry {
	return core.LedgerEntry{
		PostedDate:       core.NewDate(2024, 3, 5),
		BillingPeriod:    core.NewPeriod(2024, 4),
		Owner:            "Ana",
		Kind:             core.Debit,
		Account:          "Nubank",
		Amount:           decimal.RequireFromString("10.50"),
		InstallmentCount: 1,
		InstallmentIndex: 1,
		Category:         "Mercado",
		Description:      desc,
	}
}

func TestMemoryStoreAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	ref, err := s.AppendEntry(ctx, entry("a"))
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	n, err := s.AppendEntries(ctx, []core.LedgerEntry{entry("b"), entry("c")})
	if err != nil || n != 2 {
		t.Fatalf("unexpected batch append: n=%d err=%v", n, err)
	}

	got, err := s.ListEntries(ctx)
	if err != nil || len(got) != 3 {
		t.Fatalf("ListEntries: %v %v", got, err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Description != want {
			t.Fatalf("entry %d = %q, want %q", i, got[i].Description, want)
		}
	}

	// The returned slice is a copy.
	got[0].Description = "changed"
	again, _ := s.ListEntries(ctx)
	if again[0].Description != "a" {
		t.Fatalf("store mutated through returned slice")
	}
}

func TestAppendEntriesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(nil)
	if n, err := s.AppendEntries(ctx, []core.LedgerEntry{entry("x")}); err == nil || n != 0 {
		t.Fatalf("expected cancellation, got n=%d err=%v", n, err)
	}
}

func TestNewFromFilesSeedsBudget(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFiles(dir)
	if b, _ := s.ListBudget(context.Background()); len(b) != 0 {
		t.Fatalf("expected empty budget without seed, got %v", b)
	}

	content := "Categoria,Limite\n# comment\nCasa,\"R$ 1.500,00\"\nMercado,800\n,10\n"
	if err := os.WriteFile(filepath.Join(dir, BudgetSeedFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s = NewFromFiles(dir)
	b, _ := s.ListBudget(context.Background())
	if len(b) != 2 {
		t.Fatalf("unexpected budget: %v", b)
	}
	if b[0].Category != "Casa" || !b[0].Limit.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected first row: %+v", b[0])
	}
	if b[1].Category != "Mercado" || !b[1].Limit.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("unexpected second row: %+v", b[1])
	}
}

func TestParseBudgetCSVBadLimitCountsZero(t *testing.T) {
	b, err := parseBudgetCSV(strings.NewReader("Lazer,abc\nCasa,100\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// First line is treated as a header when its limit does not parse.
	if len(b) != 1 || b[0].Category != "Casa" {
		t.Fatalf("unexpected rows: %v", b)
	}

	b, _ = parseBudgetCSV(strings.NewReader("Categoria,Limite\nLazer,abc\n"))
	if len(b) != 1 || !b[0].Limit.IsZero() {
		t.Fatalf("unreadable limit should be kept as zero: %v", b)
	}
}

func TestReplaceBudget(t *testing.T) {
	ctx := context.Background()
	s := New([]core.BudgetLimit{{Category: "A", Limit: decimal.NewFromInt(1)}})
	if err := s.ReplaceBudget(ctx, []core.BudgetLimit{{Category: "B", Limit: decimal.NewFromInt(2)}}); err != nil {
		t.Fatal(err)
	}
	b, _ := s.ListBudget(ctx)
	if len(b) != 1 || b[0].Category != "B" {
		t.Fatalf("unexpected budget: %v", b)
	}
}
