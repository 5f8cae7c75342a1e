package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fatura/internal/cache"
	"fatura/internal/core"
	"fatura/internal/sheets"
)

const (
	snapshotKey      = "snapshot"
	snapshotDeadline = 30 * time.Second
)

// ReconciliationReport is the budget comparison of one period.
type ReconciliationReport struct {
	Period core.Period              `json:"period"`
	Rows   []core.ReconciliationRow `json:"rows"`
}

// StatementReport lists the entries billed in one period.
type StatementReport struct {
	Period  core.Period        `json:"period"`
	Entries []core.LedgerEntry `json:"entries"`
	Total   decimal.Decimal    `json:"total"`
}

// PeriodsReport lists the known periods and the one selected by default.
type PeriodsReport struct {
	Periods []core.Period `json:"periods"`
	Default core.Period   `json:"default"`
}

// ReportService is the read path. It takes a snapshot of both stores and runs
// the calculators over it.
type ReportService struct {
	ledger   sheets.LedgerReader
	budget   sheets.BudgetReader
	accounts *core.AccountBook
	cache    cache.Cache[core.Snapshot]
	group    singleflight.Group
	now      func() time.Time

	// generation is bumped by Invalidate; a fetch only caches its result if
	// no invalidation happened while it ran.
	generation atomic.Uint64
}

// NewReportService wires the read path. A nil snapshotCache fetches on every call.
func NewReportService(ledger sheets.LedgerReader, budget sheets.BudgetReader, accounts *core.AccountBook, snapshotCache cache.Cache[core.Snapshot]) *ReportService {
	return &ReportService{
		ledger:   ledger,
		budget:   budget,
		accounts: accounts,
		cache:    snapshotCache,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for open invoices and default periods.
func (s *ReportService) SetClock(now func() time.Time) { s.now = now }

// Now is the service clock.
func (s *ReportService) Now() time.Time { return s.now() }

// Accounts returns the account configuration reports are computed with.
func (s *ReportService) Accounts() *core.AccountBook { return s.accounts }

// Invalidate drops the cached snapshot so the next report refetches. A fetch
// already in flight is neither joined by later callers nor cached.
func (s *ReportService) Invalidate() {
	s.generation.Add(1)
	s.group.Forget(snapshotKey)
	if s.cache != nil {
		s.cache.Delete(context.Background(), snapshotKey)
	}
}

// Snapshot returns the cached snapshot or fetches a new one. Concurrent callers
// share a single fetch.
func (s *ReportService) Snapshot(ctx context.Context) (core.Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(ctx, snapshotKey); ok {
			return snap, nil
		}
	}

	ch := s.group.DoChan(snapshotKey, func() (interface{}, error) {
		gen := s.generation.Load()
		// Detached from the first caller so its cancellation does not fail the others.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotDeadline)
		defer cancel()
		snap, err := s.fetch(fetchCtx)
		if err != nil {
			return core.Snapshot{}, err
		}
		if s.cache != nil && s.generation.Load() == gen {
			s.cache.Set(fetchCtx, snapshotKey, snap)
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return core.Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.Snapshot{}, res.Err
		}
		return res.Val.(core.Snapshot), nil
	}
}

func (s *ReportService) fetch(ctx context.Context) (core.Snapshot, error) {
	var (
		entries []core.LedgerEntry
		budget  []core.BudgetLimit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.ledger.ListEntries(gctx)
		if err != nil {
			return fmt.Errorf("read ledger: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if s.budget == nil {
			return nil
		}
		var err error
		budget, err = s.budget.ListBudget(gctx)
		if err != nil {
			return fmt.Errorf("read budget: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, err
	}

	unparsed := 0
	for _, e := range entries {
		if e.AmountUnparsed {
			unparsed++
		}
	}
	if unparsed > 0 {
		slog.WarnContext(ctx, "Ledger rows with unreadable amounts counted as zero", "count", unparsed)
	}

	return core.Snapshot{
		Entries:         entries,
		Budget:          budget,
		FetchedAt:       s.now(),
		UnparsedAmounts: unparsed,
	}, nil
}

func (s *ReportService) OpenInvoices(ctx context.Context) ([]core.OpenInvoice, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return OpenInvoices(snap.Entries, s.accounts, s.now()), nil
}

func (s *ReportService) InvoicesByAccount(ctx context.Context) ([]core.AccountTotal, error) {
	invoices, err := s.OpenInvoices(ctx)
	if err != nil {
		return nil, err
	}
	return InvoicesByAccount(invoices), nil
}

func (s *ReportService) Periods(ctx context.Context) (PeriodsReport, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return PeriodsReport{}, err
	}
	periods := AvailablePeriods(snap.Entries)
	return PeriodsReport{Periods: periods, Default: DefaultPeriod(periods, s.now())}, nil
}

// Reconcile compares spend and budget for period. A zero period selects the default one.
func (s *ReportService) Reconcile(ctx context.Context, period core.Period) (ReconciliationReport, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return ReconciliationReport{}, err
	}
	period = s.resolvePeriod(snap, period)
	return ReconciliationReport{Period: period, Rows: Reconcile(snap.Entries, snap.Budget, period)}, nil
}

func (s *ReportService) Summary(ctx context.Context, period core.Period) (core.PeriodSummary, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return core.PeriodSummary{}, err
	}
	return Summarize(snap.Entries, snap.Budget, s.resolvePeriod(snap, period)), nil
}

func (s *ReportService) Statement(ctx context.Context, period core.Period) (StatementReport, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return StatementReport{}, err
	}
	period = s.resolvePeriod(snap, period)
	entries := Statement(snap.Entries, period)
	return StatementReport{Period: period, Entries: entries, Total: Total(entries, nil)}, nil
}

func (s *ReportService) resolvePeriod(snap core.Snapshot, period core.Period) core.Period {
	if !period.IsZero() {
		return period
	}
	return DefaultPeriod(AvailablePeriods(snap.Entries), s.now())
}
