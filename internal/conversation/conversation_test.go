package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatura/internal/cache"
	"fatura/internal/core"
	"fatura/internal/services"
)

type fakeRecorder struct {
	got []core.Purchase
	err error
}

func (f *fakeRecorder) Record(_ context.Context, p core.Purchase) (services.Receipt, error) {
	f.got = append(f.got, p)
	if f.err != nil {
		return services.Receipt{}, f.err
	}
	return services.Receipt{PurchaseID: "p-1"}, nil
}

type fakeReporter struct{}

func (fakeReporter) OpenInvoices(context.Context) ([]core.OpenInvoice, error) {
	return []core.OpenInvoice{{Account: "Nubank", Owner: "Ana", Total: core.ParseAmount("120"), DueDisplay: "4/04"}}, nil
}

func (fakeReporter) Reconcile(_ context.Context, _ core.Period) (services.ReconciliationReport, error) {
	return services.ReconciliationReport{
		Period: core.NewPeriod(2024, 3),
		Rows: []core.ReconciliationRow{
			{Category: "Casa", Limit: core.ParseAmount("500"), Actual: core.ParseAmount("400"), Status: core.StatusOK},
		},
	}, nil
}

var testOptions = Options{
	Accounts:   []string{"Nubank", "PIX"},
	Owners:     []string{"Ana", "Bob"},
	Categories: []string{"Casa", "Mercado", "Outros"},
}

func newTestManager(rec Recorder) *Manager {
	m := NewManager(rec, fakeReporter{}, testOptions, nil)
	m.SetClock(func() time.Time { return time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC) })
	return m
}

func send(t *testing.T, m *Manager, inputs ...string) Reply {
	t.Helper()
	var r Reply
	for _, in := range inputs {
		var err error
		r, err = m.Handle(context.Background(), "chat-1", in)
		require.NoError(t, err)
	}
	return r
}

func TestHandle_InstallmentFlow(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestManager(rec)

	r := send(t, m, "oi")
	assert.Equal(t, StateIdle, r.State)
	assert.Equal(t, []string{OptionRecord, OptionReport}, r.Options)

	r = send(t, m, "registrar gasto")
	assert.Equal(t, StateAwaitingAmount, r.State)

	r = send(t, m, "R$ 1.200,00")
	assert.Equal(t, StateAwaitingPaymentType, r.State)
	assert.Contains(t, r.Text, "R$ 1.200,00")

	r = send(t, m, "parcelado")
	assert.Equal(t, StateAwaitingInstallments, r.State)

	r = send(t, m, "3")
	assert.Equal(t, StateAwaitingAccount, r.State)
	assert.Equal(t, testOptions.Accounts, r.Options)

	r = send(t, m, "nubank")
	assert.Equal(t, StateAwaitingOwner, r.State)

	r = send(t, m, "ANA")
	assert.Equal(t, StateAwaitingCategory, r.State)

	r = send(t, m, "casa")
	assert.Equal(t, StateSaved, r.State)
	require.NotNil(t, r.Receipt)
	assert.Equal(t, []string{OptionNew}, r.Options)

	require.Len(t, rec.got, 1)
	p := rec.got[0]
	assert.True(t, p.Amount.Equal(core.ParseAmount("1200")))
	assert.Equal(t, 3, p.Installments)
	assert.Equal(t, "Nubank", p.Account)
	assert.Equal(t, "Ana", p.Owner)
	assert.Equal(t, "Casa", p.Category)
	assert.Equal(t, core.NewDate(2024, 3, 5), p.PurchaseDate)

	s, ok := m.Session(context.Background(), "chat-1")
	require.True(t, ok)
	assert.Equal(t, StateIdle, s.State)
	assert.True(t, s.Amount.IsZero())
}

func TestHandle_SinglePaymentCustomCategory(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestManager(rec)

	r := send(t, m, "/start", OptionRecord, "50,00", "à vista")
	assert.Equal(t, StateAwaitingAccount, r.State)

	r = send(t, m, "PIX", "Bob", "outros")
	assert.Equal(t, StateAwaitingCustomCategory, r.State)

	r = send(t, m, "presente de aniversário")
	assert.Equal(t, StateSaved, r.State)
	require.Len(t, rec.got, 1)
	assert.Equal(t, 1, rec.got[0].Installments)
	assert.Equal(t, "Presente De Aniversário", rec.got[0].Category)
}

func TestHandle_InvalidInputKeepsState(t *testing.T) {
	m := newTestManager(&fakeRecorder{})

	r := send(t, m, OptionRecord, "0")
	assert.Equal(t, StateAwaitingAmount, r.State)
	assert.Contains(t, r.Text, "inválido")

	r = send(t, m, "abc")
	assert.Equal(t, StateAwaitingAmount, r.State)

	r = send(t, m, "10", "talvez")
	assert.Equal(t, StateAwaitingPaymentType, r.State)

	r = send(t, m, OptionSplit, "dois")
	assert.Equal(t, StateAwaitingInstallments, r.State)
	r = send(t, m, "0")
	assert.Equal(t, StateAwaitingInstallments, r.State)

	r = send(t, m, "2", "Itau")
	assert.Equal(t, StateAwaitingAccount, r.State)
}

func TestHandle_ResetMidFlow(t *testing.T) {
	m := newTestManager(&fakeRecorder{})
	send(t, m, OptionRecord, "10")

	r := send(t, m, "Olá")
	assert.Equal(t, StateIdle, r.State)
	s, _ := m.Session(context.Background(), "chat-1")
	assert.True(t, s.Amount.IsZero())
}

func TestHandle_PartialWriteReported(t *testing.T) {
	rec := &fakeRecorder{err: &core.PartialWriteError{PurchaseID: "p", Written: 1, Total: 3, Err: errors.New("quota")}}
	m := newTestManager(rec)

	r := send(t, m, OptionRecord, "30", OptionSplit, "3", "Nubank", "Ana", "Casa")
	assert.Equal(t, StateIdle, r.State)
	assert.Contains(t, r.Text, "1 de 3")
}

func TestHandle_Report(t *testing.T) {
	m := newTestManager(&fakeRecorder{})
	r := send(t, m, OptionReport)
	assert.Equal(t, StateIdle, r.State)
	assert.Contains(t, r.Text, "Relatório 03-2024")
	assert.Contains(t, r.Text, "Casa: R$ 400,00 / R$ 500,00 (OK)")
	assert.Contains(t, r.Text, "Nubank - Ana: R$ 120,00")
}

// periodReporter records which period the report asked for.
type periodReporter struct {
	fakeReporter
	asked []core.Period
}

func (p *periodReporter) Reconcile(ctx context.Context, period core.Period) (services.ReconciliationReport, error) {
	p.asked = append(p.asked, period)
	return p.fakeReporter.Reconcile(ctx, period)
}

func TestHandle_ReportUsesCalendarMonth(t *testing.T) {
	reporter := &periodReporter{}
	m := NewManager(&fakeRecorder{}, reporter, testOptions, nil)
	m.SetClock(func() time.Time { return time.Date(2024, 7, 31, 23, 0, 0, 0, time.UTC) })

	send(t, m, OptionReport)
	require.Len(t, reporter.asked, 1)
	assert.Equal(t, core.NewPeriod(2024, 7), reporter.asked[0], "report must not fall back to the default period")
}

func TestHandle_SessionsAreIndependent(t *testing.T) {
	m := newTestManager(&fakeRecorder{})
	ctx := context.Background()

	_, err := m.Handle(ctx, "a", OptionRecord)
	require.NoError(t, err)
	r, err := m.Handle(ctx, "b", "10")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.State)

	r, err = m.Handle(ctx, "a", "10")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPaymentType, r.State)

	_, err = m.Handle(ctx, " ", "oi")
	assert.Error(t, err)
}

func TestHandle_SessionExpires(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	sessions := cache.NewLRUCache[Session](10, SessionTTL)
	sessions.SetClock(func() time.Time { return now })
	m := NewManager(&fakeRecorder{}, nil, testOptions, sessions)

	_, err := m.Handle(context.Background(), "chat", OptionRecord)
	require.NoError(t, err)

	now = now.Add(SessionTTL)
	r, err := m.Handle(context.Background(), "chat", "10")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.State, "expired session starts over")
}
