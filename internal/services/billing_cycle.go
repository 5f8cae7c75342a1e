// Package services provides business logic and orchestration services.
//
// This file implements the billing cycle rule shared by the write path (which
// period a new purchase lands on) and the read path (which period is open now).
package services

import (
	"time"

	"fatura/internal/core"
)

// ResolveBillingPeriod returns the period a purchase on purchaseDate posts to.
//
// Instant accounts always post to the purchase month. Other accounts post to
// the purchase month up to and including the closing day, and to the following
// month afterwards. Accounts without configuration close on day 1.
func ResolveBillingPeriod(purchaseDate time.Time, account core.Account) core.Period {
	period := core.PeriodOf(purchaseDate)
	if account.Instant {
		return period
	}
	closing := account.ClosingDay
	if closing < 1 {
		closing = core.DefaultClosingDay
	}
	if purchaseDate.Day() > closing {
		return period.AddMonths(1)
	}
	return period
}

// OpenPeriod is the period a hypothetical purchase made at now would post to.
func OpenPeriod(account core.Account, now time.Time) core.Period {
	return ResolveBillingPeriod(now, account)
}
