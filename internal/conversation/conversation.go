// Package conversation runs the chat data-entry flow. Each conversation id has
// its own Session; sessions expire after SessionTTL without input.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fatura/internal/cache"
	"fatura/internal/core"
	"fatura/internal/services"
)

type State string

const (
	StateIdle                   State = "idle"
	StateAwaitingAmount         State = "awaiting_amount"
	StateAwaitingPaymentType    State = "awaiting_payment_type"
	StateAwaitingInstallments   State = "awaiting_installments"
	StateAwaitingAccount        State = "awaiting_account"
	StateAwaitingOwner          State = "awaiting_owner"
	StateAwaitingCategory       State = "awaiting_category"
	StateAwaitingCustomCategory State = "awaiting_custom_category"
	StateSaved                  State = "saved"
)

const (
	SessionTTL  = 30 * time.Minute
	MaxSessions = 1000

	OptionRecord   = "Registrar Gasto"
	OptionReport   = "Ver Relatório"
	OptionNew      = "Novo"
	OptionSingle   = "À Vista"
	OptionSplit    = "Parcelado"
	CustomCategory = "Outros"
)

var resetWords = []string{"/start", "/help", "oi", "olá", "hola"}

// Recorder saves a finished purchase.
type Recorder interface {
	Record(ctx context.Context, p core.Purchase) (services.Receipt, error)
}

// Reporter answers the report menu option.
type Reporter interface {
	OpenInvoices(ctx context.Context) ([]core.OpenInvoice, error)
	Reconcile(ctx context.Context, period core.Period) (services.ReconciliationReport, error)
}

// Options are the choices offered at each selection step. An empty list
// accepts any non-blank text.
type Options struct {
	Accounts   []string
	Owners     []string
	Categories []string
}

// Session is the data collected so far in one conversation.
type Session struct {
	ID           string          `json:"id"`
	State        State           `json:"state"`
	Amount       decimal.Decimal `json:"amount"`
	Installments int             `json:"installments"`
	Account      string          `json:"account"`
	Owner        string          `json:"owner"`
	Category     string          `json:"category"`
}

// Reply is what the user sees after one message.
type Reply struct {
	Text    string            `json:"text"`
	Options []string          `json:"options,omitempty"`
	State   State             `json:"state"`
	Receipt *services.Receipt `json:"receipt,omitempty"`
}

type Manager struct {
	recorder Recorder
	reporter Reporter
	options  Options
	sessions cache.Cache[Session]
	now      func() time.Time

	// mu serializes steps so two messages on one session cannot race.
	mu sync.Mutex
}

// NewManager builds a manager. A nil sessions cache gets an in-process LRU
// with SessionTTL expiry.
func NewManager(recorder Recorder, reporter Reporter, options Options, sessions cache.Cache[Session]) *Manager {
	if sessions == nil {
		sessions = cache.NewLRUCache[Session](MaxSessions, SessionTTL)
	}
	return &Manager{
		recorder: recorder,
		reporter: reporter,
		options:  options,
		sessions: sessions,
		now:      time.Now,
	}
}

func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Session returns the current state of conversation id.
func (m *Manager) Session(ctx context.Context, id string) (Session, bool) {
	return m.sessions.Get(ctx, id)
}

// Handle feeds one message into conversation id.
func (m *Manager) Handle(ctx context.Context, id, input string) (Reply, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Reply{}, errors.New("conversation id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.Get(ctx, id)
	if !ok {
		s = Session{ID: id, State: StateIdle}
	}

	reply := m.step(ctx, &s, strings.TrimSpace(input))
	m.sessions.Set(ctx, id, s)
	return reply, nil
}

func (m *Manager) step(ctx context.Context, s *Session, input string) Reply {
	if isReset(input) {
		s.reset()
		return menu()
	}

	switch s.State {
	case StateAwaitingAmount:
		amount, err := core.ParseAmountStrict(input)
		if err != nil || amount.Sign() <= 0 {
			return Reply{Text: "❌ Valor inválido. Tente novamente:", State: s.State}
		}
		s.Amount = amount
		s.State = StateAwaitingPaymentType
		return Reply{
			Text:    fmt.Sprintf("✅ %s\nComo vai pagar?", core.FormatAmount(amount)),
			Options: []string{OptionSingle, OptionSplit},
			State:   s.State,
		}

	case StateAwaitingPaymentType:
		switch {
		case sameOption(input, OptionSingle):
			s.Installments = 1
			return m.askAccount(s)
		case sameOption(input, OptionSplit):
			s.State = StateAwaitingInstallments
			return Reply{Text: "Quantas Parcelas?", State: s.State}
		}
		return Reply{Text: "Como vai pagar?", Options: []string{OptionSingle, OptionSplit}, State: s.State}

	case StateAwaitingInstallments:
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 {
			return Reply{Text: "❌ Use apenas números.", State: s.State}
		}
		s.Installments = n
		return m.askAccount(s)

	case StateAwaitingAccount:
		account, ok := pick(input, m.options.Accounts)
		if !ok {
			return m.askAccount(s)
		}
		s.Account = account
		s.State = StateAwaitingOwner
		return Reply{Text: "De quem é o cartão?", Options: m.options.Owners, State: s.State}

	case StateAwaitingOwner:
		owner, ok := pick(input, m.options.Owners)
		if !ok {
			return Reply{Text: "De quem é o cartão?", Options: m.options.Owners, State: s.State}
		}
		s.Owner = owner
		s.State = StateAwaitingCategory
		return Reply{Text: "Qual a Categoria?", Options: m.options.Categories, State: s.State}

	case StateAwaitingCategory:
		category, ok := pick(input, m.options.Categories)
		if !ok {
			return Reply{Text: "Qual a Categoria?", Options: m.options.Categories, State: s.State}
		}
		if sameOption(category, CustomCategory) {
			s.State = StateAwaitingCustomCategory
			return Reply{Text: "O que é especificamente?", State: s.State}
		}
		s.Category = category
		return m.save(ctx, s)

	case StateAwaitingCustomCategory:
		if input == "" {
			return Reply{Text: "O que é especificamente?", State: s.State}
		}
		s.Category = cases.Title(language.BrazilianPortuguese).String(input)
		return m.save(ctx, s)

	default:
		switch {
		case sameOption(input, OptionRecord), sameOption(input, OptionNew):
			s.reset()
			s.State = StateAwaitingAmount
			return Reply{Text: "Digite o Valor (Ex: 50,00):", State: s.State}
		case sameOption(input, OptionReport):
			return m.report(ctx)
		}
		return menu()
	}
}

func (m *Manager) askAccount(s *Session) Reply {
	s.State = StateAwaitingAccount
	return Reply{Text: "Qual Banco?", Options: m.options.Accounts, State: s.State}
}

func (m *Manager) save(ctx context.Context, s *Session) Reply {
	p := core.Purchase{
		Amount:       s.Amount,
		Installments: s.Installments,
		PurchaseDate: core.DateOf(m.now()),
		Account:      s.Account,
		Owner:        s.Owner,
		Category:     s.Category,
	}
	s.reset()

	if m.recorder == nil {
		return Reply{Text: "❌ Erro: armazenamento indisponível", State: StateIdle}
	}
	receipt, err := m.recorder.Record(ctx, p)
	if err != nil {
		slog.ErrorContext(ctx, "Chat purchase failed", "conversation_id", s.ID, "error", err)
		var pwe *core.PartialWriteError
		if errors.As(err, &pwe) {
			return Reply{
				Text:  fmt.Sprintf("❌ Erro: só %d de %d parcelas foram salvas (%v)", pwe.Written, pwe.Total, pwe.Err),
				State: StateIdle,
			}
		}
		return Reply{Text: fmt.Sprintf("❌ Erro: %v", err), State: StateIdle}
	}

	return Reply{
		Text: fmt.Sprintf("Salvo\n%s\n%s - %s\n%s\nMais alguma coisa?",
			core.FormatAmount(p.Amount), p.Account, p.Owner, p.Category),
		Options: []string{OptionNew},
		State:   StateSaved,
		Receipt: &receipt,
	}
}

func (m *Manager) report(ctx context.Context) Reply {
	if m.reporter == nil {
		return Reply{Text: "❌ Relatório indisponível", State: StateIdle}
	}
	invoices, err := m.reporter.OpenInvoices(ctx)
	if err != nil {
		return Reply{Text: fmt.Sprintf("❌ Erro: %v", err), State: StateIdle}
	}
	rec, err := m.reporter.Reconcile(ctx, core.PeriodOf(m.now()))
	if err != nil {
		return Reply{Text: fmt.Sprintf("❌ Erro: %v", err), State: StateIdle}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Relatório %s\n", rec.Period)
	for _, r := range rec.Rows {
		fmt.Fprintf(&b, "%s: %s / %s (%s)\n", r.Category, core.FormatAmount(r.Actual), core.FormatAmount(r.Limit), r.Status)
	}
	b.WriteString("Faturas abertas:\n")
	if len(invoices) == 0 {
		b.WriteString("nenhuma\n")
	}
	for _, inv := range invoices {
		fmt.Fprintf(&b, "%s - %s: %s (vence %s)\n", inv.Account, inv.Owner, core.FormatAmount(inv.Total), inv.DueDisplay)
	}
	return Reply{
		Text:    strings.TrimRight(b.String(), "\n"),
		Options: []string{OptionRecord, OptionReport},
		State:   StateIdle,
	}
}

func (s *Session) reset() {
	*s = Session{ID: s.ID, State: StateIdle}
}

func menu() Reply {
	return Reply{
		Text:    "Olá! O que vamos fazer?",
		Options: []string{OptionRecord, OptionReport},
		State:   StateIdle,
	}
}

func isReset(input string) bool {
	for _, w := range resetWords {
		if sameOption(input, w) {
			return true
		}
	}
	return false
}

func sameOption(a, b string) bool {
	return core.NormalizeAccount(a) == core.NormalizeAccount(b)
}

// pick returns the configured spelling of input, or input itself when no
// options are configured.
func pick(input string, options []string) (string, bool) {
	if len(options) == 0 {
		return input, input != ""
	}
	for _, o := range options {
		if sameOption(input, o) {
			return o, true
		}
	}
	return "", false
}
