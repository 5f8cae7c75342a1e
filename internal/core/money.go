// Package core provides money parsing and handling utilities.
//
// This file contains the amount parser used for every monetary cell read from
// the ledger and budget stores, plus helpers to round and format amounts.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnparsedAmount marks text that does not look like an amount.
var ErrUnparsedAmount = errors.New("unparsed amount")

const currencyPrefix = "R$"

// ParseAmountStrict normalizes Brazilian-formatted monetary text into a decimal.
//
// A leading "R$" and surrounding whitespace are dropped. When the text contains a
// comma, every "." is a thousands separator and the comma is the decimal mark;
// otherwise the text is parsed as-is. Signs are preserved.
//
// Examples:
//   ParseAmountStrict("R$ 1.234,56") -> 1234.56, nil
//   ParseAmountStrict("50,00")       -> 50, nil
//   ParseAmountStrict("12.5")        -> 12.5, nil
//   ParseAmountStrict("")            -> 0, ErrUnparsedAmount
func ParseAmountStrict(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSpace(strings.TrimPrefix(s, currencyPrefix))
	if s == "" {
		return decimal.Zero, ErrUnparsedAmount
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparsedAmount, text)
	}
	return d, nil
}

// ParseAmount is the fail-soft variant: anything unparseable is zero.
// A bad cell must never abort a whole report.
func ParseAmount(text string) decimal.Decimal {
	d, err := ParseAmountStrict(text)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseAmountValue accepts a cell value that may already be numeric.
func ParseAmountValue(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, ErrUnparsedAmount
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case string:
		return ParseAmountStrict(x)
	default:
		return ParseAmountStrict(fmt.Sprint(x))
	}
}

// RoundAmount fixes an amount to two decimal places, half away from zero.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatAmount renders d the way the ledger shows money: "R$ 1.234,56". The
// output parses back through ParseAmountStrict.
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return currencyPrefix + " " + sign + b.String() + "," + frac
}
