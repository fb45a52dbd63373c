package billing

import (
	"time"

	"github.com/ecoapi/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Common billing errors
var (
	// ErrAlreadyInvoiced is returned when a mark-invoiced write finds the row
	// was already invoiced, typically by a concurrent reconciliation run.
	ErrAlreadyInvoiced = shared.NewDomainError("ALREADY_INVOICED", "Usage period is already invoiced")
)

// UsagePeriod is one customer's metered API usage for a single billing
// period. The usage accounting pipeline creates one row per (customer,
// period start) at period rollover; this engine mutates it exactly once, to
// record the invoiced overage. Rows are never deleted.
//
// Invariants:
//   - Invoiced == true implies InvoiceItemID != nil; once set, never reverts.
//   - OverageCostCents, when nil, is derived deterministically from
//     OverageCalls; when non-nil it was precomputed by the metering side and
//     is trusted as-is so the two systems of record cannot drift.
type UsagePeriod struct {
	shared.BaseEntity
	CustomerID        string
	SubscriptionID    uuid.UUID
	PeriodStart       time.Time
	PeriodEnd         time.Time
	APICalls          int64
	OverageCalls      int64
	OverageCostCents  *int64
	Invoiced          bool
	InvoiceItemID     *string
	PermanentFailures int
	NeedsReview       bool
}

// NewUsagePeriod creates a usage period with validation
func NewUsagePeriod(customerID string, subscriptionID uuid.UUID, periodStart, periodEnd time.Time) (*UsagePeriod, error) {
	if customerID == "" {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if subscriptionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION", "Subscription ID cannot be empty")
	}
	if periodEnd.Before(periodStart) {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Period end cannot be before period start")
	}

	return &UsagePeriod{
		BaseEntity:     shared.NewBaseEntity(),
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
	}, nil
}

// Closed returns true if the billing period has ended as of the reference
// date. Only closed periods are charge candidates.
func (p *UsagePeriod) Closed(referenceDate time.Time) bool {
	return !p.PeriodEnd.After(referenceDate)
}

// MarkInvoiced records a successful invoice item submission on the entity.
// The persistence layer enforces the same transition with a conditional
// write; this method guards in-memory state for callers holding the entity.
func (p *UsagePeriod) MarkInvoiced(invoiceItemID string, costCents int64) error {
	if p.Invoiced {
		return ErrAlreadyInvoiced
	}
	if invoiceItemID == "" {
		return shared.NewDomainError("INVALID_INVOICE_ITEM", "Invoice item ID cannot be empty")
	}
	if costCents < 0 {
		return shared.NewDomainError("INVALID_COST", "Overage cost cannot be negative")
	}

	p.Invoiced = true
	p.InvoiceItemID = &invoiceItemID
	p.OverageCostCents = &costCents
	p.UpdatedAt = time.Now()
	return nil
}

// RecordPermanentFailure increments the consecutive permanent failure
// counter and flags the row for manual review once it reaches the threshold,
// removing it from automatic charge selection until an operator clears it.
// Returns true if the row is now flagged.
func (p *UsagePeriod) RecordPermanentFailure(reviewThreshold int) bool {
	p.PermanentFailures++
	if reviewThreshold > 0 && p.PermanentFailures >= reviewThreshold {
		p.NeedsReview = true
	}
	p.UpdatedAt = time.Now()
	return p.NeedsReview
}
