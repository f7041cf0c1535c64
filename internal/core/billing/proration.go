// Package billing contains the pure arithmetic for first-charge proration.
// It has no side effects and no dependencies on the gateway or the store.
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MinBillingDay and MaxBillingDay bound the configurable billing anchor.
	// Day 28 is the latest day that exists in every month.
	MinBillingDay = 1
	MaxBillingDay = 28
)

// Charge describes the first (possibly partial) charge for a new subscription
// and the steady-state renewal anchor that follows it.
type Charge struct {
	// FirstCharge is the amount billed for the partial period between
	// enrollment and the next billing date, rounded half-up to 2 decimal
	// places. Equals the full price when proration is disabled.
	FirstCharge decimal.Decimal
	// DaysRemaining counts billed days in the enrollment month, the
	// enrollment day included.
	DaysRemaining int
	// DaysInMonth is the calendar length of the enrollment month.
	DaysInMonth int
	// NextBillingDate is the first occurrence of the billing day strictly
	// after enrollment; renewals recur monthly from there.
	NextBillingDate time.Time
}

// FirstCharge computes the initial charge for a client enrolling on
// enrollment day with the given monthly price and billing anchor day.
//
// With proration enabled the charge covers the days remaining in the
// enrollment month: price / daysInMonth * daysRemaining. Enrolling on the
// last day of the month still bills one day, so the result is never zero.
// With proration disabled the full monthly price is charged up front.
func FirstCharge(price decimal.Decimal, enrollment time.Time, billingDay int, prorate bool) Charge {
	if billingDay < MinBillingDay {
		billingDay = MinBillingDay
	}
	if billingDay > MaxBillingDay {
		billingDay = MaxBillingDay
	}

	daysInMonth := daysIn(enrollment)
	next := nextBillingDate(enrollment, billingDay)

	if !prorate {
		return Charge{
			FirstCharge:     price.Round(2),
			DaysRemaining:   daysInMonth,
			DaysInMonth:     daysInMonth,
			NextBillingDate: next,
		}
	}

	daysRemaining := daysInMonth - enrollment.Day() + 1
	amount := price.
		Div(decimal.NewFromInt(int64(daysInMonth))).
		Mul(decimal.NewFromInt(int64(daysRemaining))).
		Round(2)

	return Charge{
		FirstCharge:     amount,
		DaysRemaining:   daysRemaining,
		DaysInMonth:     daysInMonth,
		NextBillingDate: next,
	}
}

// daysIn returns the calendar length of t's month.
func daysIn(t time.Time) int {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Day()
}

// nextBillingDate returns the first occurrence of billingDay strictly after t.
// Enrolling on the billing day itself anchors the first renewal to next month.
func nextBillingDate(t time.Time, billingDay int) time.Time {
	anchor := time.Date(t.Year(), t.Month(), billingDay, 0, 0, 0, 0, t.Location())
	if t.Day() >= billingDay {
		anchor = anchor.AddDate(0, 1, 0)
	}
	return anchor
}
