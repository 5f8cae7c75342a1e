package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fatura/internal/core"
)

// SplitInstallments expands a purchase into one entry per installment.
//
// Each entry carries round(total/N, 2); leftover cents are not redistributed, so
// the entries may add up to a slightly different total. Entry i lands i months
// after the first billing period. PostedDate is always the purchase date.
func SplitInstallments(p core.Purchase, account core.Account) ([]core.LedgerEntry, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid purchase: %w", err)
	}

	n := p.Installments
	perInstallment := p.Amount.DivRound(decimal.NewFromInt(int64(n)), 2)
	first := ResolveBillingPeriod(p.PurchaseDate.Time, account)
	kind := core.KindFor(n)
	purchaseID := uuid.NewString()

	entries := make([]core.LedgerEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, core.LedgerEntry{
			PostedDate:       p.PurchaseDate,
			BillingPeriod:    first.AddMonths(i),
			Owner:            strings.TrimSpace(p.Owner),
			Kind:             kind,
			Account:          strings.TrimSpace(p.Account),
			Amount:           perInstallment,
			InstallmentCount: n,
			InstallmentIndex: i + 1,
			Category:         strings.TrimSpace(p.Category),
			Description:      installmentDescription(p, i+1),
			PurchaseID:       purchaseID,
		})
	}
	return entries, nil
}

func installmentDescription(p core.Purchase, index int) string {
	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		return fmt.Sprintf("%s (%d/%d)", strings.TrimSpace(p.Category), index, p.Installments)
	}
	if p.Installments == 1 {
		return desc
	}
	return fmt.Sprintf("%s (%d/%d)", desc, index, p.Installments)
}
