package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatura/internal/core"
	"fatura/internal/services"
	"fatura/internal/sheets/memory"
)

func newTools(t *testing.T) (*Tools, *memory.Store) {
	t.Helper()
	book := core.NewAccountBook(core.Account{Name: "Nubank", ClosingDay: 4})
	store := memory.New([]core.BudgetLimit{{Category: "Casa", Limit: core.ParseAmount("500")}})
	reports := services.NewReportService(store, store, book, nil)
	reports.SetClock(func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) })
	purchases := services.NewPurchaseService(store, book, reports.Invalidate)
	return New(reports, purchases), store
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestRecordPurchaseAndReports(t *testing.T) {
	tools, store := newTools(t)
	ctx := context.Background()

	res, err := tools.RecordPurchase(ctx, call(map[string]any{
		"amount":       "R$ 300,00",
		"account":      "Nubank",
		"category":     "Casa",
		"owner":        "Ana",
		"installments": float64(3),
		"date":         "05/03/2024",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	out := text(t, res)
	assert.Contains(t, out, "R$ 300,00 on Nubank")
	assert.Contains(t, out, "1/3 04-2024 R$ 100,00")
	assert.Contains(t, out, "3/3 06-2024 R$ 100,00")

	rows, err := store.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	res, err = tools.OpenInvoices(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "Nubank (Ana): R$ 100,00, period 04-2024, due 4/04")

	res, err = tools.ListPeriods(ctx, call(nil))
	require.NoError(t, err)
	assert.Equal(t, "Periods: 04-2024, 05-2024, 06-2024\nDefault: 04-2024", text(t, res))

	res, err = tools.ReconcileBudget(ctx, call(map[string]any{"period": "05-2024"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "Casa: spent R$ 100,00 of R$ 500,00, remaining R$ 400,00 [OK]")

	res, err = tools.PeriodSummary(ctx, call(map[string]any{"period": "06-2024"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "Entries: 1")
}

func TestRecordPurchaseErrors(t *testing.T) {
	tools, store := newTools(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing amount", map[string]any{"account": "Nubank", "category": "Casa"}},
		{"bad amount", map[string]any{"amount": "dez", "account": "Nubank", "category": "Casa"}},
		{"zero amount", map[string]any{"amount": "0", "account": "Nubank", "category": "Casa"}},
		{"missing category", map[string]any{"amount": "10", "account": "Nubank"}},
		{"bad date", map[string]any{"amount": "10", "account": "Nubank", "category": "Casa", "date": "2024-03-05"}},
		{"zero installments", map[string]any{"amount": "10", "account": "Nubank", "category": "Casa", "installments": float64(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tools.RecordPurchase(ctx, call(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}

	rows, _ := store.ListEntries(ctx)
	assert.Empty(t, rows)
}

type partialPurchases struct{}

func (partialPurchases) Record(context.Context, core.Purchase) (services.Receipt, error) {
	return services.Receipt{}, &core.PartialWriteError{PurchaseID: "p-1", Written: 1, Total: 2, Err: errors.New("quota")}
}

func TestRecordPurchasePartialWrite(t *testing.T) {
	base, _ := newTools(t)
	tools := New(base.reports, partialPurchases{})

	res, err := tools.RecordPurchase(context.Background(), call(map[string]any{"amount": "10", "account": "Nubank", "category": "Casa"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "only 1 of 2")
}

func TestInvalidPeriodArgument(t *testing.T) {
	tools, _ := newTools(t)
	res, err := tools.ReconcileBudget(context.Background(), call(map[string]any{"period": "2024-03"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestEmptyLedger(t *testing.T) {
	tools, _ := newTools(t)
	ctx := context.Background()

	res, err := tools.OpenInvoices(ctx, call(nil))
	require.NoError(t, err)
	assert.Equal(t, "No open invoices.", text(t, res))

	res, err = tools.ReconcileBudget(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "Casa: spent R$ 0,00 of R$ 500,00")
}

func listedTools(t *testing.T, s *server.MCPServer) []string {
	t.Helper()
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	names := make([]string, 0, len(decoded.Result.Tools))
	for _, tool := range decoded.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestRegisterTools(t *testing.T) {
	tools, _ := newTools(t)
	s := server.NewMCPServer("fatura", "test", server.WithToolCapabilities(false))
	tools.RegisterTools(s)
	assert.ElementsMatch(t,
		[]string{"open_invoices", "reconcile_budget", "period_summary", "list_periods", "record_purchase"},
		listedTools(t, s))

	readOnly := server.NewMCPServer("fatura", "test", server.WithToolCapabilities(false))
	New(tools.reports, nil).RegisterTools(readOnly)
	assert.NotContains(t, listedTools(t, readOnly), "record_purchase")
	assert.Len(t, listedTools(t, readOnly), 4)
}
