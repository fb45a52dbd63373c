package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/ecoapi/backend/internal/domain/billing"
)

func chargeable(t *testing.T, plan billing.Plan, overageCalls int64, opts ...func(*billing.UsagePeriod, *billing.Subscription)) billing.ChargeablePeriod {
	t.Helper()
	subID := uuid.New()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	period, err := billing.NewUsagePeriod("cust_1", subID, start, end)
	if err != nil {
		t.Fatalf("new usage period: %v", err)
	}
	period.APICalls = 100000 + overageCalls
	period.OverageCalls = overageCalls

	sub := &billing.Subscription{
		CustomerID:           "cust_1",
		Plan:                 plan,
		StripeCustomerID:     "cus_abc",
		StripeSubscriptionID: "sub_abc",
		Status:               billing.SubscriptionStatusActive,
	}
	sub.ID = subID

	cp := billing.ChargeablePeriod{Period: period, Subscription: sub}
	for _, opt := range opts {
		opt(period, sub)
	}
	return cp
}

func TestInvoicerServiceInvoice(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("invoices a chargeable period", func(t *testing.T) {
		cp := chargeable(t, billing.PlanPro, 500)
		repo := new(MockUsagePeriodRepository)
		gw := new(MockPaymentGateway)
		gw.On("SubmitInvoiceItem", ctx, mock.AnythingOfType("*billing.OverageCharge")).Return("ii_123", nil)
		repo.On("MarkInvoiced", ctx, cp.Period.ID, "ii_123", int64(50)).Return(nil)

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusInvoiced, result.Status)
		assert.Equal(t, "ii_123", result.InvoiceItemID)
		assert.Equal(t, int64(50), result.CostCents)
		repo.AssertExpectations(t)
		gw.AssertExpectations(t)
	})

	t.Run("skips free plan without touching the gateway", func(t *testing.T) {
		cp := chargeable(t, billing.PlanFree, 500)
		repo := new(MockUsagePeriodRepository)
		gw := new(MockPaymentGateway)

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusSkipped, result.Status)
		assert.Equal(t, billing.SkipIneligiblePlan, result.SkipReason)
		gw.AssertNotCalled(t, "SubmitInvoiceItem", mock.Anything, mock.Anything)
	})

	t.Run("skips zero-cost overage without touching the gateway", func(t *testing.T) {
		cp := chargeable(t, billing.PlanPro, 4)
		repo := new(MockUsagePeriodRepository)
		gw := new(MockPaymentGateway)

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusSkipped, result.Status)
		assert.Equal(t, billing.SkipNoOverage, result.SkipReason)
		gw.AssertNotCalled(t, "SubmitInvoiceItem", mock.Anything, mock.Anything)
	})

	t.Run("skips already invoiced period", func(t *testing.T) {
		cp := chargeable(t, billing.PlanPro, 500, func(p *billing.UsagePeriod, _ *billing.Subscription) {
			p.Invoiced = true
		})
		repo := new(MockUsagePeriodRepository)
		gw := new(MockPaymentGateway)

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusSkipped, result.Status)
		assert.Equal(t, billing.SkipAlreadyInvoiced, result.SkipReason)
		gw.AssertNotCalled(t, "SubmitInvoiceItem", mock.Anything, mock.Anything)
	})

	t.Run("missing payee is a permanent failure", func(t *testing.T) {
		cp := chargeable(t, billing.PlanPro, 500, func(_ *billing.UsagePeriod, s *billing.Subscription) {
			s.StripeCustomerID = ""
		})
		repo := new(MockUsagePeriodRepository)
		repo.On("RecordPermanentFailure", ctx, cp.Period.ID, 3).Return(false, nil)
		gw := new(MockPaymentGateway)

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusFailed, result.Status)
		assert.False(t, result.Retryable)
		assert.Equal(t, billing.SkipMissingPayee, result.SkipReason)
		repo.AssertExpectations(t)
		gw.AssertNotCalled(t, "SubmitInvoiceItem", mock.Anything, mock.Anything)
	})

	t.Run("transient gateway failure is retryable and leaves the row alone", func(t *testing.T) {
		cp := chargeable(t, billing.PlanPro, 500)
		repo := new(MockUsagePeriodRepository)
		gw := new(MockPaymentGateway)
		gw.On("SubmitInvoiceItem", ctx, mock.Anything).Return("", &gatewayErr{msg: "timeout", transient: true})

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusFailed, result.Status)
		assert.True(t, result.Retryable)
		repo.AssertNotCalled(t, "MarkInvoiced", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "RecordPermanentFailure", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejection records a permanent failure", func(t *testing.T) {
		cp := chargeable(t, billing.PlanPro, 500)
		repo := new(MockUsagePeriodRepository)
		repo.On("RecordPermanentFailure", ctx, cp.Period.ID, 3).Return(true, nil)
		gw := new(MockPaymentGateway)
		gw.On("SubmitInvoiceItem", ctx, mock.Anything).Return("", &gatewayErr{msg: "no such customer", transient: false})

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusFailed, result.Status)
		assert.False(t, result.Retryable)
		repo.AssertExpectations(t)
	})

	t.Run("lost conditional write still reports invoiced", func(t *testing.T) {
		cp := chargeable(t, billing.PlanPro, 500)
		repo := new(MockUsagePeriodRepository)
		repo.On("MarkInvoiced", ctx, cp.Period.ID, "ii_123", int64(50)).Return(billing.ErrAlreadyInvoiced)
		gw := new(MockPaymentGateway)
		gw.On("SubmitInvoiceItem", ctx, mock.Anything).Return("ii_123", nil)

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusInvoiced, result.Status)
		assert.Equal(t, "ii_123", result.InvoiceItemID)
	})

	t.Run("persistence failure after submission is not retryable", func(t *testing.T) {
		cp := chargeable(t, billing.PlanPro, 500)
		repo := new(MockUsagePeriodRepository)
		repo.On("MarkInvoiced", ctx, cp.Period.ID, "ii_123", int64(50)).Return(errors.New("connection reset"))
		gw := new(MockPaymentGateway)
		gw.On("SubmitInvoiceItem", ctx, mock.Anything).Return("ii_123", nil)

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusFailed, result.Status)
		assert.False(t, result.Retryable)
		repo.AssertNotCalled(t, "RecordPermanentFailure", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("precomputed cost is charged as stored", func(t *testing.T) {
		precomputed := int64(1234)
		cp := chargeable(t, billing.PlanPro, 500, func(p *billing.UsagePeriod, _ *billing.Subscription) {
			p.OverageCostCents = &precomputed
		})
		repo := new(MockUsagePeriodRepository)
		repo.On("MarkInvoiced", ctx, cp.Period.ID, "ii_9", precomputed).Return(nil)
		gw := new(MockPaymentGateway)
		gw.On("SubmitInvoiceItem", ctx, mock.MatchedBy(func(c *billing.OverageCharge) bool {
			return c.CostCents == precomputed
		})).Return("ii_9", nil)

		svc := NewInvoicerService(repo, gw, 3, logger)
		result := svc.Invoice(ctx, cp)

		assert.Equal(t, StatusInvoiced, result.Status)
		assert.Equal(t, precomputed, result.CostCents)
		repo.AssertExpectations(t)
		gw.AssertExpectations(t)
	})
}
