package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeriod(t *testing.T, subID uuid.UUID, overageCalls int64) *UsagePeriod {
	t.Helper()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	period, err := NewUsagePeriod("c1", subID, start, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	period.APICalls = 100000 + overageCalls
	period.OverageCalls = overageCalls
	return period
}

func testSubscription(subID uuid.UUID, plan Plan) *Subscription {
	sub := &Subscription{
		CustomerID:           "c1",
		Plan:                 plan,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		Status:               SubscriptionStatusActive,
	}
	sub.ID = subID
	return sub
}

func TestOverageCostCents(t *testing.T) {
	tests := []struct {
		name  string
		calls int64
		want  int64
	}{
		{"zero calls", 0, 0},
		{"negative calls", -10, 0},
		{"rounds down below half a cent", 4, 0},
		{"rounds up at half a cent", 5, 1},
		{"five hundred calls at a tenth of a cent", 500, 50},
		{"exact dollar", 1000, 100},
		{"large volume", 1234567, 123457},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverageCostCents(tt.calls))
		})
	}
}

func TestCalculate(t *testing.T) {
	subID := uuid.New()

	t.Run("pro plan with overage yields charge", func(t *testing.T) {
		period := testPeriod(t, subID, 500)
		sub := testSubscription(subID, PlanPro)

		charge, reason, err := Calculate(period, sub)
		require.NoError(t, err)
		require.NotNil(t, charge)
		assert.Equal(t, SkipNone, reason)
		assert.Equal(t, "c1", charge.CustomerID)
		assert.Equal(t, int64(500), charge.OverageCalls)
		assert.Equal(t, int64(50), charge.CostCents)
		assert.Equal(t, "cus_1", charge.StripeCustomerID)
		assert.Equal(t, "sub_1", charge.StripeSubscriptionID)
		assert.Equal(t, period.PeriodStart, charge.PeriodStart)
		assert.Equal(t, period.PeriodEnd, charge.PeriodEnd)
	})

	t.Run("precomputed cost is trusted over recomputation", func(t *testing.T) {
		period := testPeriod(t, subID, 500)
		precomputed := int64(47)
		period.OverageCostCents = &precomputed

		charge, _, err := Calculate(period, testSubscription(subID, PlanPro))
		require.NoError(t, err)
		require.NotNil(t, charge)
		assert.Equal(t, int64(47), charge.CostCents)
	})

	t.Run("free plan is skipped", func(t *testing.T) {
		period := testPeriod(t, subID, 50)

		charge, reason, err := Calculate(period, testSubscription(subID, PlanFree))
		require.NoError(t, err)
		assert.Nil(t, charge)
		assert.Equal(t, SkipIneligiblePlan, reason)
	})

	t.Run("enterprise plan is skipped", func(t *testing.T) {
		period := testPeriod(t, subID, 50)

		charge, reason, err := Calculate(period, testSubscription(subID, PlanEnterprise))
		require.NoError(t, err)
		assert.Nil(t, charge)
		assert.Equal(t, SkipIneligiblePlan, reason)
	})

	t.Run("zero overage is skipped", func(t *testing.T) {
		period := testPeriod(t, subID, 0)

		charge, reason, err := Calculate(period, testSubscription(subID, PlanPro))
		require.NoError(t, err)
		assert.Nil(t, charge)
		assert.Equal(t, SkipNoOverage, reason)
	})

	t.Run("cost rounding to zero is skipped", func(t *testing.T) {
		period := testPeriod(t, subID, 4)

		charge, reason, err := Calculate(period, testSubscription(subID, PlanPro))
		require.NoError(t, err)
		assert.Nil(t, charge)
		assert.Equal(t, SkipNoOverage, reason)
	})

	t.Run("precomputed zero cost is skipped", func(t *testing.T) {
		period := testPeriod(t, subID, 500)
		zero := int64(0)
		period.OverageCostCents = &zero

		charge, reason, err := Calculate(period, testSubscription(subID, PlanPro))
		require.NoError(t, err)
		assert.Nil(t, charge)
		assert.Equal(t, SkipNoOverage, reason)
	})

	t.Run("already invoiced is skipped", func(t *testing.T) {
		period := testPeriod(t, subID, 500)
		require.NoError(t, period.MarkInvoiced("ii_1", 50))

		charge, reason, err := Calculate(period, testSubscription(subID, PlanPro))
		require.NoError(t, err)
		assert.Nil(t, charge)
		assert.Equal(t, SkipAlreadyInvoiced, reason)
	})

	t.Run("missing payee is skipped", func(t *testing.T) {
		period := testPeriod(t, subID, 500)
		sub := testSubscription(subID, PlanPro)
		sub.StripeCustomerID = ""

		charge, reason, err := Calculate(period, sub)
		require.NoError(t, err)
		assert.Nil(t, charge)
		assert.Equal(t, SkipMissingPayee, reason)
	})

	t.Run("mismatched subscription is an error", func(t *testing.T) {
		period := testPeriod(t, subID, 500)
		sub := testSubscription(uuid.New(), PlanPro)

		charge, _, err := Calculate(period, sub)
		assert.Error(t, err)
		assert.Nil(t, charge)
	})

	t.Run("repeated calculation is stable", func(t *testing.T) {
		period := testPeriod(t, subID, 500)
		sub := testSubscription(subID, PlanPro)

		first, _, err := Calculate(period, sub)
		require.NoError(t, err)
		second, _, err := Calculate(period, sub)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
