package billing

import (
	"github.com/ecoapi/backend/internal/domain/shared"
)

// SubscriptionStatus represents the lifecycle status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid   SubscriptionStatus = "unpaid"
)

// String returns the string representation of the status
func (s SubscriptionStatus) String() string {
	return string(s)
}

// Subscription is a read-only view of a customer's subscription. It is owned
// by the subscription management service; this engine only reads the current
// plan tier and the Stripe payee references from it.
type Subscription struct {
	shared.BaseEntity
	CustomerID           string
	Plan                 Plan
	StripeCustomerID     string
	StripeSubscriptionID string
	Status               SubscriptionStatus
}

// HasPayee returns true if the subscription carries the external customer
// reference required to create invoice items against it.
func (s *Subscription) HasPayee() bool {
	return s.StripeCustomerID != ""
}
