package billing

import (
	"time"

	"github.com/google/uuid"
)

// OverageCharge is the transient value object produced by Calculate and
// consumed by the invoicer. It carries everything the payment processor needs
// for one invoice item; it is never persisted in its own right.
type OverageCharge struct {
	CustomerID           string
	SubscriptionID       uuid.UUID
	OverageCalls         int64
	CostCents            int64
	PeriodStart          time.Time
	PeriodEnd            time.Time
	StripeCustomerID     string
	StripeSubscriptionID string
}
