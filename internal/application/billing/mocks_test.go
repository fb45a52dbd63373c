package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ecoapi/backend/internal/domain/billing"
)

type MockUsagePeriodRepository struct {
	mock.Mock
}

func (m *MockUsagePeriodRepository) Save(ctx context.Context, period *billing.UsagePeriod) error {
	args := m.Called(ctx, period)
	return args.Error(0)
}

func (m *MockUsagePeriodRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.UsagePeriod, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UsagePeriod), args.Error(1)
}

func (m *MockUsagePeriodRepository) FindLatestByCustomer(ctx context.Context, customerID string) (*billing.UsagePeriod, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UsagePeriod), args.Error(1)
}

func (m *MockUsagePeriodRepository) FindChargeable(ctx context.Context, referenceDate time.Time) ([]billing.ChargeablePeriod, error) {
	args := m.Called(ctx, referenceDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.ChargeablePeriod), args.Error(1)
}

func (m *MockUsagePeriodRepository) MarkInvoiced(ctx context.Context, id uuid.UUID, invoiceItemID string, costCents int64) error {
	args := m.Called(ctx, id, invoiceItemID, costCents)
	return args.Error(0)
}

func (m *MockUsagePeriodRepository) RecordPermanentFailure(ctx context.Context, id uuid.UUID, reviewThreshold int) (bool, error) {
	args := m.Called(ctx, id, reviewThreshold)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsagePeriodRepository) ClearReview(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindLatestByCustomer(ctx context.Context, customerID string) (*billing.Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) SubmitInvoiceItem(ctx context.Context, charge *billing.OverageCharge) (string, error) {
	args := m.Called(ctx, charge)
	return args.String(0), args.Error(1)
}

type MockInvoicer struct {
	mock.Mock
}

func (m *MockInvoicer) Invoice(ctx context.Context, cp billing.ChargeablePeriod) InvoiceResult {
	args := m.Called(ctx, cp)
	return args.Get(0).(InvoiceResult)
}

type MockSummaryCache struct {
	mock.Mock
}

func (m *MockSummaryCache) Get(ctx context.Context, customerID string) (*OverageSummary, bool) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*OverageSummary), args.Bool(1)
}

func (m *MockSummaryCache) Set(ctx context.Context, customerID string, summary *OverageSummary) {
	m.Called(ctx, customerID, summary)
}

// gatewayErr is a stand-in for classified gateway failures
type gatewayErr struct {
	msg       string
	transient bool
}

func (e *gatewayErr) Error() string   { return e.msg }
func (e *gatewayErr) Transient() bool { return e.transient }
