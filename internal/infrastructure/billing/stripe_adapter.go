package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/invoiceitem"
	"go.uber.org/zap"

	billingdomain "github.com/ecoapi/backend/internal/domain/billing"
)

// StripeAdapter submits overage charges to Stripe as invoice items. The
// invoice item attaches to the customer's next invoice, so no invoice is
// finalized here.
type StripeAdapter struct {
	config *StripeConfig
	logger *zap.Logger
}

// NewStripeAdapter creates a new Stripe payment gateway adapter
func NewStripeAdapter(cfg *StripeConfig, logger *zap.Logger) (*StripeAdapter, error) {
	if err := InitStripeClient(cfg); err != nil {
		return nil, err
	}
	return &StripeAdapter{config: cfg, logger: logger}, nil
}

// SubmitInvoiceItem creates a pending invoice item for the given overage
// charge and returns the Stripe invoice item ID. Failures are classified
// as transient or rejected so callers can decide whether to retry.
func (a *StripeAdapter) SubmitInvoiceItem(ctx context.Context, charge *billingdomain.OverageCharge) (string, error) {
	if charge == nil {
		return "", fmt.Errorf("stripe: charge is required")
	}
	if charge.StripeCustomerID == "" {
		return "", fmt.Errorf("stripe: charge has no stripe customer")
	}

	a.logger.Debug("submitting overage invoice item",
		zap.String("customer_id", charge.CustomerID),
		zap.String("stripe_customer_id", charge.StripeCustomerID),
		zap.Int64("overage_calls", charge.OverageCalls),
		zap.Int64("cost_cents", charge.CostCents),
	)

	callCtx, cancel := context.WithTimeout(ctx, a.config.SubmitTimeout)
	defer cancel()

	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(charge.StripeCustomerID),
		Amount:      stripe.Int64(charge.CostCents),
		Currency:    stripe.String(billingdomain.Currency),
		Description: stripe.String(fmt.Sprintf("API overage charges for period starting %s", charge.PeriodStart.Format("2006-01-02"))),
	}
	params.Context = callCtx
	params.AddMetadata("eco_id", charge.CustomerID)
	params.AddMetadata("billing_period_start", charge.PeriodStart.Format("2006-01-02"))
	params.AddMetadata("billing_period_end", charge.PeriodEnd.Format("2006-01-02"))
	params.AddMetadata("type", "api_overage")
	if charge.StripeSubscriptionID != "" {
		params.AddMetadata("stripe_subscription_id", charge.StripeSubscriptionID)
	}

	item, err := invoiceitem.New(params)
	if err != nil {
		classified := classifyStripeError(err)
		a.logger.Error("failed to create invoice item",
			zap.String("customer_id", charge.CustomerID),
			zap.Bool("transient", IsTransient(classified)),
			zap.Error(err),
		)
		return "", classified
	}

	a.logger.Info("overage invoice item created",
		zap.String("customer_id", charge.CustomerID),
		zap.String("invoice_item_id", item.ID),
		zap.Int64("cost_cents", charge.CostCents),
	)

	return item.ID, nil
}
