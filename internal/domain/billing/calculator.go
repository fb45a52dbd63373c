package billing

import (
	"fmt"

	"github.com/ecoapi/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Currency is the settlement currency for overage invoice items.
const Currency = "usd"

// overageRateCents is the billed rate per overage API call, in cents.
// $0.001 per call, so the per-call amount is fractional and the total is
// rounded to the nearest cent only after multiplying.
var overageRateCents = decimal.RequireFromString("0.1")

// SkipReason explains why a usage period produced no charge. A skip is a
// normal outcome, not an error; MissingPayee is the exception the caller is
// expected to surface since it needs operator attention.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipIneligiblePlan  SkipReason = "ineligible_plan"
	SkipNoOverage       SkipReason = "no_overage"
	SkipAlreadyInvoiced SkipReason = "already_invoiced"
	SkipMissingPayee    SkipReason = "missing_payee"
)

// String returns the string representation of the skip reason
func (r SkipReason) String() string {
	return string(r)
}

// OverageCostCents computes the charge for a number of overage calls,
// rounded to the nearest cent. Never negative.
func OverageCostCents(overageCalls int64) int64 {
	if overageCalls <= 0 {
		return 0
	}
	return decimal.NewFromInt(overageCalls).Mul(overageRateCents).Round(0).IntPart()
}

// Calculate turns a usage period and its subscription into a chargeable
// OverageCharge. It returns a nil charge and a SkipReason when the period is
// not billable: wrong plan, no overage, already invoiced, or the subscription
// lacks a Stripe customer to invoice against.
//
// If the usage row already carries a precomputed cost from the metering
// pipeline, that value is trusted instead of recomputing, so the engine never
// drifts from the metering system of record.
//
// Pure and side-effect free; safe to call repeatedly.
func Calculate(period *UsagePeriod, sub *Subscription) (*OverageCharge, SkipReason, error) {
	if period == nil || sub == nil {
		return nil, SkipNone, shared.ErrInvalidInput
	}
	if period.SubscriptionID != sub.ID {
		return nil, SkipNone, fmt.Errorf("usage period %s belongs to subscription %s, not %s: %w",
			period.ID, period.SubscriptionID, sub.ID, shared.ErrInvalidInput)
	}

	if !sub.Plan.OverageEligible() {
		return nil, SkipIneligiblePlan, nil
	}
	if period.OverageCalls <= 0 {
		return nil, SkipNoOverage, nil
	}
	if period.Invoiced {
		return nil, SkipAlreadyInvoiced, nil
	}
	if !sub.HasPayee() {
		return nil, SkipMissingPayee, nil
	}

	costCents := OverageCostCents(period.OverageCalls)
	if period.OverageCostCents != nil {
		costCents = *period.OverageCostCents
	}
	if costCents <= 0 {
		// A handful of calls rounds to zero cents. Never submit a
		// zero-amount invoice item.
		return nil, SkipNoOverage, nil
	}

	return &OverageCharge{
		CustomerID:           period.CustomerID,
		SubscriptionID:       period.SubscriptionID,
		OverageCalls:         period.OverageCalls,
		CostCents:            costCents,
		PeriodStart:          period.PeriodStart,
		PeriodEnd:            period.PeriodEnd,
		StripeCustomerID:     sub.StripeCustomerID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
	}, SkipNone, nil
}
