package core

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultClosingDay applies to accounts missing from the configuration.
const DefaultClosingDay = 1

// Account is a payment method. Credit-style accounts roll purchases made after
// ClosingDay into the next month's bill; Instant accounts never roll.
type Account struct {
	Name       string
	ClosingDay int
	Instant    bool
}

// DueDay is the day shown next to an open invoice.
func (a Account) DueDay() int {
	if a.ClosingDay < 1 {
		return DefaultClosingDay
	}
	return a.ClosingDay
}

// AccountBook is the static account configuration, keyed by normalized name.
type AccountBook struct {
	accounts map[string]Account
}

// NormalizeAccount is the single lookup key rule for account names: trimmed and case-folded.
func NormalizeAccount(name string) string {
	// Casers keep state, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(name))
}

func NewAccountBook(accounts ...Account) *AccountBook {
	b := &AccountBook{accounts: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		key := NormalizeAccount(a.Name)
		if key == "" {
			continue
		}
		b.accounts[key] = a
	}
	return b
}

// Lookup never fails: unknown accounts get the default closing day.
func (b *AccountBook) Lookup(name string) Account {
	if b != nil {
		if a, ok := b.accounts[NormalizeAccount(name)]; ok {
			return a
		}
	}
	return Account{Name: strings.TrimSpace(name), ClosingDay: DefaultClosingDay}
}

// Configured reports whether name has an explicit entry.
func (b *AccountBook) Configured(name string) bool {
	if b == nil {
		return false
	}
	_, ok := b.accounts[NormalizeAccount(name)]
	return ok
}

// Accounts returns the configured accounts sorted by name.
func (b *AccountBook) Accounts() []Account {
	if b == nil {
		return nil
	}
	out := make([]Account, 0, len(b.accounts))
	for _, a := range b.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return NormalizeAccount(out[i].Name) < NormalizeAccount(out[j].Name) })
	return out
}
