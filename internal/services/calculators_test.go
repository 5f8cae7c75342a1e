package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fatura/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(account, owner, category, amount string, period core.Period) core.LedgerEntry {
	return core.LedgerEntry{
		PostedDate:    core.NewDate(period.Year, int(period.Month), 1),
		BillingPeriod: period,
		Owner:         owner,
		Kind:          core.Debit,
		Account:       account,
		Amount:        dec(amount),
		Category:      category,
	}
}

func TestResolveBillingPeriod(t *testing.T) {
	nubank := core.Account{Name: "Nubank", ClosingDay: 4}
	pix := core.Account{Name: "PIX", Instant: true}

	tests := []struct {
		name    string
		date    time.Time
		account core.Account
		want    core.Period
	}{
		{"after closing day rolls over", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), nubank, core.NewPeriod(2024, 4)},
		{"on closing day stays", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), nubank, core.NewPeriod(2024, 3)},
		{"december rolls into january", time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC), nubank, core.NewPeriod(2025, 1)},
		{"instant account never rolls", time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC), pix, core.NewPeriod(2024, 3)},
		{"unconfigured closes on day one", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), core.Account{Name: "Other"}, core.NewPeriod(2024, 4)},
		{"unconfigured first day stays", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), core.Account{Name: "Other"}, core.NewPeriod(2024, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveBillingPeriod(tt.date, tt.account); got != tt.want {
				t.Errorf("ResolveBillingPeriod() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitInstallments(t *testing.T) {
	p := core.Purchase{
		Amount:       dec("100"),
		Installments: 3,
		PurchaseDate: core.NewDate(2024, 3, 5),
		Account:      " Nubank ",
		Owner:        "Ana",
		Category:     "Casa",
		Description:  "Sofa",
	}
	entries, err := SplitInstallments(p, core.Account{Name: "Nubank", ClosingDay: 4})
	if err != nil {
		t.Fatalf("SplitInstallments() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	sum := decimal.Zero
	for i, e := range entries {
		if !e.Amount.Equal(dec("33.33")) {
			t.Errorf("entry %d amount = %s", i, e.Amount)
		}
		if e.InstallmentIndex != i+1 || e.InstallmentCount != 3 {
			t.Errorf("entry %d index = %d/%d", i, e.InstallmentIndex, e.InstallmentCount)
		}
		if want := core.NewPeriod(2024, time.Month(4+i)); e.BillingPeriod != want {
			t.Errorf("entry %d period = %v, want %v", i, e.BillingPeriod, want)
		}
		if e.PostedDate != p.PurchaseDate {
			t.Errorf("entry %d posted date = %v", i, e.PostedDate)
		}
		if e.Kind != core.Credit || e.Account != "Nubank" {
			t.Errorf("entry %d kind/account = %s/%s", i, e.Kind, e.Account)
		}
		if e.PurchaseID == "" || e.PurchaseID != entries[0].PurchaseID {
			t.Errorf("entry %d purchase id = %q", i, e.PurchaseID)
		}
		sum = sum.Add(e.Amount)
	}
	drift := p.Amount.Sub(sum).Abs()
	if drift.GreaterThan(dec("0.03")) {
		t.Errorf("rounding drift %s too large", drift)
	}
	if entries[1].Description != "Sofa (2/3)" {
		t.Errorf("description = %q", entries[1].Description)
	}
}

func TestSplitInstallments_SinglePayment(t *testing.T) {
	p := core.Purchase{
		Amount:       dec("42.50"),
		Installments: 1,
		PurchaseDate: core.NewDate(2024, 3, 1),
		Account:      "PIX",
		Owner:        "Ana",
		Category:     "Mercado",
	}
	entries, err := SplitInstallments(p, core.Account{Name: "PIX", Instant: true})
	if err != nil {
		t.Fatalf("SplitInstallments() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != core.Debit || !entries[0].Amount.Equal(dec("42.5")) {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestSplitInstallments_Invalid(t *testing.T) {
	base := core.Purchase{
		Amount:       dec("10"),
		Installments: 1,
		PurchaseDate: core.NewDate(2024, 3, 1),
		Account:      "PIX",
		Owner:        "Ana",
		Category:     "Mercado",
	}
	tests := []struct {
		name   string
		mutate func(*core.Purchase)
	}{
		{"zero amount", func(p *core.Purchase) { p.Amount = decimal.Zero }},
		{"negative amount", func(p *core.Purchase) { p.Amount = dec("-1") }},
		{"zero installments", func(p *core.Purchase) { p.Installments = 0 }},
		{"blank account", func(p *core.Purchase) { p.Account = "  " }},
		{"zero date", func(p *core.Purchase) { p.PurchaseDate = core.Date{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if _, err := SplitInstallments(p, core.Account{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSumBy(t *testing.T) {
	if got := SumBy(nil, ByCategory, nil); got == nil || len(got) != 0 {
		t.Fatalf("SumBy(nil) = %v, want empty map", got)
	}

	mar := core.NewPeriod(2024, 3)
	apr := core.NewPeriod(2024, 4)
	entries := []core.LedgerEntry{
		entry("Nubank", "Ana", "Casa", "10", mar),
		entry("NUBANK ", "Ana", "Casa", "5.5", mar),
		entry("Nubank", "Bob", "Lazer", "7", apr),
	}

	byPair := SumBy(entries, ByAccountOwner, nil)
	if got := byPair[AccountOwner{Account: "nubank", Owner: "Ana"}]; !got.Equal(dec("15.5")) {
		t.Errorf("nubank/Ana = %s", got)
	}

	byCategory := SumBy(entries, ByCategory, InPeriod(apr))
	if len(byCategory) != 1 || !byCategory["Lazer"].Equal(dec("7")) {
		t.Errorf("by category = %v", byCategory)
	}
}

func TestOpenInvoices(t *testing.T) {
	book := core.NewAccountBook(
		core.Account{Name: "Nubank", ClosingDay: 4},
		core.Account{Name: "PIX", Instant: true},
	)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	mar := core.NewPeriod(2024, 3)
	apr := core.NewPeriod(2024, 4)

	entries := []core.LedgerEntry{
		entry("Nubank", "Ana", "Casa", "100", apr),
		entry("nubank", "Ana", "Casa", "20", apr),
		entry("Nubank", "Ana", "Casa", "50", mar),
		entry("PIX", "Bob", "Mercado", "30", mar),
		entry("Itau", "Ana", "Lazer", "10", apr),
		entry("Itau", "Ana", "Lazer", "-10", apr),
	}

	got := OpenInvoices(entries, book, now)
	if len(got) != 2 {
		t.Fatalf("got %d invoices, want 2: %+v", len(got), got)
	}
	if got[0].Account != "Nubank" || got[0].BillingPeriod != apr || !got[0].Total.Equal(dec("120")) {
		t.Errorf("nubank invoice = %+v", got[0])
	}
	if got[0].DueDisplay != "4/04" {
		t.Errorf("due = %q", got[0].DueDisplay)
	}
	if got[1].Account != "PIX" || got[1].BillingPeriod != mar || !got[1].Total.Equal(dec("30")) {
		t.Errorf("pix invoice = %+v", got[1])
	}

	if got := OpenInvoices(nil, book, now); len(got) != 0 {
		t.Errorf("empty ledger gave %v", got)
	}
}

func TestInvoicesByAccount(t *testing.T) {
	invoices := []core.OpenInvoice{
		{Account: "Nubank", Owner: "Ana", Total: dec("10")},
		{Account: "Nubank", Owner: "Bob", Total: dec("5")},
		{Account: "PIX", Owner: "Ana", Total: dec("1")},
	}
	got := InvoicesByAccount(invoices)
	if len(got) != 2 || !got[0].Total.Equal(dec("15")) || got[1].Account != "PIX" {
		t.Errorf("InvoicesByAccount() = %+v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		limit, actual string
		want          core.Status
	}{
		{"500", "400", core.StatusOK},
		{"500", "400.01", core.StatusWarning},
		{"500", "500", core.StatusExceeded},
		{"500", "600", core.StatusExceeded},
		{"0", "10", core.StatusUnbudgeted},
		{"0", "0", core.StatusOK},
		{"500", "0", core.StatusOK},
	}
	for _, tt := range tests {
		if got := Classify(dec(tt.limit), dec(tt.actual)); got != tt.want {
			t.Errorf("Classify(%s, %s) = %s, want %s", tt.limit, tt.actual, got, tt.want)
		}
	}
}

func TestReconcile(t *testing.T) {
	mar := core.NewPeriod(2024, 3)
	entries := []core.LedgerEntry{
		entry("Nubank", "Ana", "Casa", "400", mar),
		entry("Nubank", "Ana", "Mercado", "300", mar),
		entry("Nubank", "Ana", "Lazer", "250", mar),
		entry("Nubank", "Ana", "Restaurante", "50", mar),
		entry("Nubank", "Ana", "Casa", "999", mar.AddMonths(1)),
	}
	limits := []core.BudgetLimit{
		{Category: "Casa", Limit: dec("500")},
		{Category: "Mercado", Limit: dec("300")},
		{Category: "Lazer", Limit: dec("300")},
		{Category: "Saúde", Limit: dec("100")},
		{Category: "Outros", Limit: decimal.Zero},
	}

	rows := Reconcile(entries, limits, mar)
	want := []struct {
		category string
		status   core.Status
	}{
		{"Casa", core.StatusOK},
		{"Mercado", core.StatusExceeded},
		{"Lazer", core.StatusWarning},
		{"Restaurante", core.StatusUnbudgeted},
		{"Saúde", core.StatusOK},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i, w := range want {
		if rows[i].Category != w.category || rows[i].Status != w.status {
			t.Errorf("row %d = %s/%s, want %s/%s", i, rows[i].Category, rows[i].Status, w.category, w.status)
		}
	}
	if !rows[0].Remaining.Equal(dec("100")) {
		t.Errorf("casa remaining = %s", rows[0].Remaining)
	}
}

func TestReconcile_EmptyLedger(t *testing.T) {
	rows := Reconcile(nil, []core.BudgetLimit{{Category: "Casa", Limit: dec("500")}}, core.NewPeriod(2024, 3))
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	r := rows[0]
	if r.Category != "Casa" || !r.Actual.IsZero() || !r.Remaining.Equal(dec("500")) || r.Status != core.StatusOK {
		t.Errorf("row = %+v", r)
	}
}

func TestReconcile_DuplicateLimitsAreSummed(t *testing.T) {
	limits := []core.BudgetLimit{
		{Category: "Casa", Limit: dec("200")},
		{Category: " Casa", Limit: dec("300")},
	}
	rows := Reconcile(nil, limits, core.NewPeriod(2024, 3))
	if len(rows) != 1 || !rows[0].Limit.Equal(dec("500")) {
		t.Errorf("rows = %+v", rows)
	}
}

func TestAvailableAndDefaultPeriods(t *testing.T) {
	entries := []core.LedgerEntry{
		entry("A", "Ana", "Casa", "1", core.NewPeriod(2024, 5)),
		entry("A", "Ana", "Casa", "1", core.NewPeriod(2023, 12)),
		entry("A", "Ana", "Casa", "1", core.NewPeriod(2024, 5)),
		{Amount: dec("1")},
	}
	periods := AvailablePeriods(entries)
	if len(periods) != 2 || periods[0] != core.NewPeriod(2023, 12) {
		t.Fatalf("periods = %v", periods)
	}

	may := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	if got := DefaultPeriod(periods, may); got != core.NewPeriod(2024, 5) {
		t.Errorf("current month default = %v", got)
	}
	june := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := DefaultPeriod(periods, june); got != core.NewPeriod(2023, 12) {
		t.Errorf("fallback default = %v", got)
	}
	if got := DefaultPeriod(nil, june); got != core.NewPeriod(2024, 6) {
		t.Errorf("empty default = %v", got)
	}
}

func TestSummarizeAndStatement(t *testing.T) {
	mar := core.NewPeriod(2024, 3)
	late := entry("A", "Ana", "Casa", "10", mar)
	late.PostedDate = core.NewDate(2024, 3, 20)
	early := entry("A", "Ana", "Lazer", "5", mar)
	early.PostedDate = core.NewDate(2024, 3, 2)
	other := entry("A", "Ana", "Casa", "100", mar.AddMonths(1))

	entries := []core.LedgerEntry{late, other, early}
	limits := []core.BudgetLimit{{Category: "Casa", Limit: dec("50")}, {Category: "Lazer", Limit: dec("20")}}

	s := Summarize(entries, limits, mar)
	if !s.TotalSpent.Equal(dec("15")) || !s.TotalBudget.Equal(dec("70")) || !s.Balance.Equal(dec("55")) || s.EntryCount != 2 {
		t.Errorf("summary = %+v", s)
	}

	st := Statement(entries, mar)
	if len(st) != 2 || st[0].Category != "Lazer" || st[1].Category != "Casa" {
		t.Errorf("statement = %+v", st)
	}
}
