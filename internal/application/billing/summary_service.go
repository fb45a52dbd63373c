package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ecoapi/backend/internal/domain/billing"
	"github.com/ecoapi/backend/internal/domain/shared"
)

// OverageSummary is the read model for a customer's current overage position.
// Plan is nil (null on the wire) when the customer has no usage history.
type OverageSummary struct {
	CustomerID       string     `json:"customer_id"`
	Plan             *string    `json:"plan"`
	PeriodStart      *time.Time `json:"period_start,omitempty"`
	PeriodEnd        *time.Time `json:"period_end,omitempty"`
	APICalls         int64      `json:"api_calls"`
	OverageCalls     int64      `json:"overage_calls"`
	OverageCostCents int64      `json:"overage_cost_cents"`
	OverageCostUSD   string     `json:"overage_cost_usd"`
	Currency         string     `json:"currency"`
	Invoiced         bool       `json:"invoiced"`
	InvoiceItemID    *string    `json:"invoice_item_id,omitempty"`
}

// SummaryCache caches computed summaries per customer. Implementations decide
// TTL and eviction; a nil cache is allowed and disables caching.
type SummaryCache interface {
	Get(ctx context.Context, customerID string) (*OverageSummary, bool)
	Set(ctx context.Context, customerID string, summary *OverageSummary)
}

// SummaryService serves read-only overage summaries. It never mutates billing
// state, so serving slightly stale cached data is acceptable.
type SummaryService struct {
	periods       billing.UsagePeriodRepository
	subscriptions billing.SubscriptionRepository
	cache         SummaryCache
	logger        *zap.Logger
}

// NewSummaryService creates a new summary service
func NewSummaryService(
	periods billing.UsagePeriodRepository,
	subscriptions billing.SubscriptionRepository,
	cache SummaryCache,
	logger *zap.Logger,
) *SummaryService {
	return &SummaryService{
		periods:       periods,
		subscriptions: subscriptions,
		cache:         cache,
		logger:        logger,
	}
}

// GetSummary returns the customer's latest usage period as a summary. A
// customer with no usage history gets a zeroed summary rather than an error.
func (s *SummaryService) GetSummary(ctx context.Context, customerID string) (*OverageSummary, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, customerID); ok {
			return cached, nil
		}
	}

	period, err := s.periods.FindLatestByCustomer(ctx, customerID)
	if errors.Is(err, shared.ErrNotFound) {
		// No usage history: plan stays null on the wire.
		summary := &OverageSummary{
			CustomerID:     customerID,
			OverageCostUSD: "0.00",
			Currency:       billing.Currency,
		}
		s.store(ctx, customerID, summary)
		return summary, nil
	}
	if err != nil {
		return nil, err
	}

	plan := billing.PlanFree
	sub, err := s.subscriptions.FindLatestByCustomer(ctx, customerID)
	switch {
	case err == nil:
		plan = sub.Plan
	case errors.Is(err, shared.ErrNotFound):
		// No subscription yet, report the free tier.
	default:
		return nil, err
	}

	costCents := billing.OverageCostCents(period.OverageCalls)
	if period.OverageCostCents != nil {
		costCents = *period.OverageCostCents
	}

	planName := plan.String()
	summary := &OverageSummary{
		CustomerID:       customerID,
		Plan:             &planName,
		PeriodStart:      &period.PeriodStart,
		PeriodEnd:        &period.PeriodEnd,
		APICalls:         period.APICalls,
		OverageCalls:     period.OverageCalls,
		OverageCostCents: costCents,
		OverageCostUSD:   decimal.NewFromInt(costCents).Div(decimal.NewFromInt(100)).StringFixed(2),
		Currency:         billing.Currency,
		Invoiced:         period.Invoiced,
		InvoiceItemID:    period.InvoiceItemID,
	}
	s.store(ctx, customerID, summary)
	return summary, nil
}

func (s *SummaryService) store(ctx context.Context, customerID string, summary *OverageSummary) {
	if s.cache != nil {
		s.cache.Set(ctx, customerID, summary)
	}
}
