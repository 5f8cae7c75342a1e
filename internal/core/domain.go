package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Debit  Kind = "Debito"
	Credit Kind = "Credito"
)

// DefaultOwner is used for rows that carry no owner column.
const DefaultOwner = "Geral"

const dateLayout = "02/01/2006"

// maxDescriptionLength counts characters, not bytes.
const maxDescriptionLength = 200

type (
	// Kind tells single-payment entries apart from installment entries.
	Kind string

	Date struct {
		time.Time
	}

	LedgerEntry struct {
		PostedDate       Date            `json:"posted_date"`
		BillingPeriod    Period          `json:"billing_period"`
		Owner            string          `json:"owner"`
		Kind             Kind            `json:"kind"`
		Account          string          `json:"account"`
		Amount           decimal.Decimal `json:"amount"`
		InstallmentCount int             `json:"installment_count"`
		InstallmentIndex int             `json:"installment_index"`
		Category         string          `json:"category"`
		Description      string          `json:"description"`
		PurchaseID       string          `json:"purchase_id,omitempty"` // Empty for rows read back from the spreadsheet
		AmountUnparsed   bool            `json:"amount_unparsed,omitempty"` // Amount cell was unreadable and counts as zero
	}

	Purchase struct {
		Amount       decimal.Decimal
		Installments int
		PurchaseDate Date
		Account      string
		Owner        string
		Category     string
		Description  string
	}

	BudgetLimit struct {
		Category string          `json:"category"`
		Limit    decimal.Decimal `json:"limit"`
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidInstallments = errors.New("invalid installment count")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidPeriod       = errors.New("invalid billing period")
	ErrEmptyAccount        = errors.New("empty account")
	ErrEmptyOwner          = errors.New("empty owner")
	ErrEmptyCategory       = errors.New("empty category")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
)

// KindFor returns Credit for multi-installment purchases and Debit otherwise.
func KindFor(installments int) Kind {
	if installments > 1 {
		return Credit
	}
	return Debit
}

// ParseKind accepts the stored spelling, case-insensitively. Unknown values map to Debit.
func ParseKind(s string) Kind {
	if strings.EqualFold(strings.TrimSpace(s), string(Credit)) {
		return Credit
	}
	return Debit
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day, keeping t's wall clock date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses the dd/mm/yyyy store format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String formats the date as dd/mm/yyyy.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the promoted time.Time encoding with the store format.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, b)
	}
	return d.UnmarshalText([]byte(s))
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (p Purchase) Validate() error {
	if err := p.PurchaseDate.Validate(); err != nil {
		return err
	}
	if p.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if p.Installments < 1 {
		return ErrInvalidInstallments
	}
	if strings.TrimSpace(p.Account) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(p.Owner) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(p.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(p.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}
