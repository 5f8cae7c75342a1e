// Package mcptools exposes the ledger reports and purchase recording as MCP
// tools.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"fatura/internal/core"
	"fatura/internal/services"
)

type Reports interface {
	Now() time.Time
	OpenInvoices(ctx context.Context) ([]core.OpenInvoice, error)
	Periods(ctx context.Context) (services.PeriodsReport, error)
	Reconcile(ctx context.Context, period core.Period) (services.ReconciliationReport, error)
	Summary(ctx context.Context, period core.Period) (core.PeriodSummary, error)
}

type Purchases interface {
	Record(ctx context.Context, p core.Purchase) (services.Receipt, error)
}

// Tools holds the services behind the tool handlers.
type Tools struct {
	reports   Reports
	purchases Purchases
}

func New(reports Reports, purchases Purchases) *Tools {
	return &Tools{reports: reports, purchases: purchases}
}

// RegisterTools adds every ledger tool to the server. record_purchase is only
// registered when a purchase service is available.
func (t *Tools) RegisterTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("open_invoices",
		mcp.WithDescription("List what is currently owed per account and owner. Each account uses its own open billing period, derived from its closing day."),
	), t.OpenInvoices)

	s.AddTool(mcp.NewTool("reconcile_budget",
		mcp.WithDescription("Compare actual spend per category with the monthly budget. Status is OK, Warning (above 80%), Exceeded or Unbudgeted."),
		mcp.WithString("period",
			mcp.Description("Billing period as MM-YYYY. Defaults to the current month, or the earliest period with entries."),
		),
	), t.ReconcileBudget)

	s.AddTool(mcp.NewTool("period_summary",
		mcp.WithDescription("Total spent, total budget, balance and entry count of a billing period."),
		mcp.WithString("period",
			mcp.Description("Billing period as MM-YYYY. Defaults as in reconcile_budget."),
		),
	), t.PeriodSummary)

	s.AddTool(mcp.NewTool("list_periods",
		mcp.WithDescription("List the billing periods that have ledger entries, oldest first, and the default period."),
	), t.ListPeriods)

	if t.purchases == nil {
		return
	}
	s.AddTool(mcp.NewTool("record_purchase",
		mcp.WithDescription("Record a purchase. Installment purchases are split into one ledger entry per month starting at the account's billing period."),
		mcp.WithString("amount", mcp.Required(), mcp.Description("Total amount, e.g. 1234.56 or R$ 1.234,56")),
		mcp.WithString("account", mcp.Required(), mcp.Description("Card or payment account, e.g. Nubank or PIX")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Budget category")),
		mcp.WithString("owner", mcp.Description("Whose card it is. Defaults to Geral.")),
		mcp.WithNumber("installments", mcp.Description("Number of monthly installments (default: 1)")),
		mcp.WithString("date", mcp.Description("Purchase date as dd/mm/yyyy. Defaults to today.")),
		mcp.WithString("description", mcp.Description("Free text, up to 200 characters")),
	), t.RecordPurchase)
}

func (t *Tools) OpenInvoices(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	invoices, err := t.reports.OpenInvoices(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(invoices) == 0 {
		return mcp.NewToolResultText("No open invoices."), nil
	}
	var b strings.Builder
	for _, inv := range invoices {
		fmt.Fprintf(&b, "%s (%s): %s, period %s, due %s\n",
			inv.Account, inv.Owner, core.FormatAmount(inv.Total), inv.BillingPeriod, inv.DueDisplay)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (t *Tools) ReconcileBudget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	period, err := periodArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := t.reports.Reconcile(ctx, period)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(report.Rows) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Period %s: no spend and no budget.", report.Period)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Period %s\n", report.Period)
	for _, r := range report.Rows {
		fmt.Fprintf(&b, "%s: spent %s of %s, remaining %s [%s]\n",
			r.Category, core.FormatAmount(r.Actual), core.FormatAmount(r.Limit), core.FormatAmount(r.Remaining), r.Status)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (t *Tools) PeriodSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	period, err := periodArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s, err := t.reports.Summary(ctx, period)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Period %s\nSpent: %s\nBudget: %s\nBalance: %s\nEntries: %d",
		s.Period, core.FormatAmount(s.TotalSpent), core.FormatAmount(s.TotalBudget), core.FormatAmount(s.Balance), s.EntryCount)), nil
}

func (t *Tools) ListPeriods(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := t.reports.Periods(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names := make([]string, len(report.Periods))
	for i, p := range report.Periods {
		names[i] = p.String()
	}
	list := "none"
	if len(names) > 0 {
		list = strings.Join(names, ", ")
	}
	return mcp.NewToolResultText(fmt.Sprintf("Periods: %s\nDefault: %s", list, report.Default)), nil
}

func (t *Tools) RecordPurchase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := purchaseArgs(request, t.reports.Now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	receipt, err := t.purchases.Record(ctx, p)
	if err != nil {
		var pwe *core.PartialWriteError
		if errors.As(err, &pwe) {
			return mcp.NewToolResultError(fmt.Sprintf("only %d of %d installments were written for purchase %s: %v",
				pwe.Written, pwe.Total, pwe.PurchaseID, pwe.Err)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recorded purchase %s: %s on %s\n", receipt.PurchaseID, core.FormatAmount(p.Amount), p.Account)
	for _, e := range receipt.Entries {
		fmt.Fprintf(&b, "%d/%d %s %s\n", e.InstallmentIndex, e.InstallmentCount, e.BillingPeriod, core.FormatAmount(e.Amount))
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func periodArg(request mcp.CallToolRequest) (core.Period, error) {
	s := strings.TrimSpace(mcp.ParseString(request, "period", ""))
	if s == "" {
		return core.Period{}, nil
	}
	return core.ParsePeriod(s)
}

func purchaseArgs(request mcp.CallToolRequest, now time.Time) (core.Purchase, error) {
	amountText, err := request.RequireString("amount")
	if err != nil {
		return core.Purchase{}, errors.New("amount is required")
	}
	amount, err := core.ParseAmountStrict(amountText)
	if err != nil {
		return core.Purchase{}, err
	}
	account, err := request.RequireString("account")
	if err != nil {
		return core.Purchase{}, errors.New("account is required")
	}
	category, err := request.RequireString("category")
	if err != nil {
		return core.Purchase{}, errors.New("category is required")
	}

	date := core.DateOf(now)
	if s := strings.TrimSpace(mcp.ParseString(request, "date", "")); s != "" {
		if date, err = core.ParseDate(s); err != nil {
			return core.Purchase{}, err
		}
	}
	owner := strings.TrimSpace(mcp.ParseString(request, "owner", ""))
	if owner == "" {
		owner = core.DefaultOwner
	}

	return core.Purchase{
		Amount:       amount,
		Installments: mcp.ParseInt(request, "installments", 1),
		PurchaseDate: date,
		Account:      account,
		Owner:        owner,
		Category:     category,
		Description:  mcp.ParseString(request, "description", ""),
	}, nil
}
