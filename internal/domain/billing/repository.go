package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChargeablePeriod pairs an uninvoiced usage period with the subscription it
// will be billed against, as selected by the reconciliation query.
type ChargeablePeriod struct {
	Period       *UsagePeriod
	Subscription *Subscription
}

// UsagePeriodRepository defines persistence for usage periods
type UsagePeriodRepository interface {
	// Save persists a new usage period
	Save(ctx context.Context, period *UsagePeriod) error

	// FindByID retrieves a usage period by ID
	FindByID(ctx context.Context, id uuid.UUID) (*UsagePeriod, error)

	// FindLatestByCustomer retrieves the customer's most recent usage period
	// by period start. Returns shared.ErrNotFound when the customer has none.
	FindLatestByCustomer(ctx context.Context, customerID string) (*UsagePeriod, error)

	// FindChargeable selects all charge candidates: uninvoiced rows with
	// positive overage on an overage-eligible plan whose billing period has
	// closed on or before the reference date, excluding rows flagged for
	// manual review. Ordered by period end ascending so the oldest overdue
	// rows make progress first under a partial run.
	FindChargeable(ctx context.Context, referenceDate time.Time) ([]ChargeablePeriod, error)

	// MarkInvoiced records a successful invoice item submission as a single
	// conditional write (WHERE invoiced = false) keyed by the period's
	// primary key. Returns ErrAlreadyInvoiced when the guard matched no row,
	// meaning a concurrent run already invoiced it.
	MarkInvoiced(ctx context.Context, id uuid.UUID, invoiceItemID string, costCents int64) error

	// RecordPermanentFailure increments the row's consecutive permanent
	// failure counter and flags it for manual review once the counter reaches
	// reviewThreshold. Returns true if the row is now flagged.
	RecordPermanentFailure(ctx context.Context, id uuid.UUID, reviewThreshold int) (bool, error)

	// ClearReview resets the failure counter and review flag after an
	// operator has fixed the underlying problem.
	ClearReview(ctx context.Context, id uuid.UUID) error
}

// SubscriptionRepository defines read-only access to subscriptions, which are
// owned by the subscription management service.
type SubscriptionRepository interface {
	// FindByID retrieves a subscription by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// FindLatestByCustomer retrieves the customer's most recent subscription.
	// Returns shared.ErrNotFound when the customer has none.
	FindLatestByCustomer(ctx context.Context, customerID string) (*Subscription, error)
}
