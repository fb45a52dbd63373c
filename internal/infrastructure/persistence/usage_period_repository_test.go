package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ecoapi/backend/internal/domain/billing"
	"github.com/ecoapi/backend/internal/domain/shared"
)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&UsagePeriodModel{}, &SubscriptionModel{})
	require.NoError(t, err)

	return db
}

func seedSubscription(t *testing.T, db *gorm.DB, customerID string, plan billing.Plan, stripeCustomerID string) *billing.Subscription {
	t.Helper()
	sub := &billing.Subscription{
		BaseEntity:           shared.NewBaseEntity(),
		CustomerID:           customerID,
		Plan:                 plan,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: "sub_" + customerID,
		Status:               billing.SubscriptionStatusActive,
	}
	var model SubscriptionModel
	model.FromEntity(sub)
	require.NoError(t, db.Create(&model).Error)
	return sub
}

func seedPeriod(t *testing.T, db *gorm.DB, sub *billing.Subscription, start time.Time, overageCalls int64) *billing.UsagePeriod {
	t.Helper()
	period, err := billing.NewUsagePeriod(sub.CustomerID, sub.ID, start, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	period.APICalls = 100000 + overageCalls
	period.OverageCalls = overageCalls

	repo := NewGormUsagePeriodRepository(db)
	require.NoError(t, repo.Save(context.Background(), period))
	return period
}

func TestUsagePeriodRepository_SaveAndFind(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormUsagePeriodRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("saves and retrieves a usage period", func(t *testing.T) {
		sub := seedSubscription(t, db, "cust_save", billing.PlanPro, "cus_1")
		period := seedPeriod(t, db, sub, start, 500)

		found, err := repo.FindByID(ctx, period.ID)
		require.NoError(t, err)
		assert.Equal(t, period.ID, found.ID)
		assert.Equal(t, int64(500), found.OverageCalls)
		assert.False(t, found.Invoiced)
		assert.Nil(t, found.InvoiceItemID)
	})

	t.Run("find by id returns not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("latest by customer picks the newest period", func(t *testing.T) {
		sub := seedSubscription(t, db, "cust_latest", billing.PlanPro, "cus_2")
		seedPeriod(t, db, sub, start, 100)
		newest := seedPeriod(t, db, sub, start.AddDate(0, 1, 0), 200)

		found, err := repo.FindLatestByCustomer(ctx, "cust_latest")
		require.NoError(t, err)
		assert.Equal(t, newest.ID, found.ID)
		assert.Equal(t, int64(200), found.OverageCalls)
	})

	t.Run("latest by customer returns not found for unknown customer", func(t *testing.T) {
		_, err := repo.FindLatestByCustomer(ctx, "cust_nobody")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestUsagePeriodRepository_FindChargeable(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormUsagePeriodRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ref := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	proSub := seedSubscription(t, db, "cust_pro", billing.PlanPro, "cus_pro")
	freeSub := seedSubscription(t, db, "cust_free", billing.PlanFree, "cus_free")

	eligible := seedPeriod(t, db, proSub, start, 500)
	older := seedPeriod(t, db, proSub, start.AddDate(0, -1, 0), 300)
	seedPeriod(t, db, freeSub, start, 900)  // wrong plan
	seedPeriod(t, db, proSub, start, 0)     // no overage
	seedPeriod(t, db, proSub, ref, 700) // period not yet closed

	invoiced := seedPeriod(t, db, proSub, start.AddDate(0, -2, 0), 400)
	require.NoError(t, repo.MarkInvoiced(ctx, invoiced.ID, "ii_done", 40))

	flagged := seedPeriod(t, db, proSub, start.AddDate(0, -3, 0), 400)
	for i := 0; i < 3; i++ {
		_, err := repo.RecordPermanentFailure(ctx, flagged.ID, 3)
		require.NoError(t, err)
	}

	result, err := repo.FindChargeable(ctx, ref)
	require.NoError(t, err)
	require.Len(t, result, 2)

	// Oldest period end first.
	assert.Equal(t, older.ID, result[0].Period.ID)
	assert.Equal(t, eligible.ID, result[1].Period.ID)
	assert.Equal(t, proSub.ID, result[0].Subscription.ID)
	assert.Equal(t, billing.PlanPro, result[0].Subscription.Plan)
}

func TestUsagePeriodRepository_MarkInvoiced(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormUsagePeriodRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("first write wins", func(t *testing.T) {
		sub := seedSubscription(t, db, "cust_mark", billing.PlanPro, "cus_3")
		period := seedPeriod(t, db, sub, start, 500)

		require.NoError(t, repo.MarkInvoiced(ctx, period.ID, "ii_first", 50))

		found, err := repo.FindByID(ctx, period.ID)
		require.NoError(t, err)
		assert.True(t, found.Invoiced)
		require.NotNil(t, found.InvoiceItemID)
		assert.Equal(t, "ii_first", *found.InvoiceItemID)
		require.NotNil(t, found.OverageCostCents)
		assert.Equal(t, int64(50), *found.OverageCostCents)
	})

	t.Run("second write is rejected and preserves the first", func(t *testing.T) {
		sub := seedSubscription(t, db, "cust_mark2", billing.PlanPro, "cus_4")
		period := seedPeriod(t, db, sub, start, 500)

		require.NoError(t, repo.MarkInvoiced(ctx, period.ID, "ii_first", 50))
		err := repo.MarkInvoiced(ctx, period.ID, "ii_second", 99)
		assert.ErrorIs(t, err, billing.ErrAlreadyInvoiced)

		found, err := repo.FindByID(ctx, period.ID)
		require.NoError(t, err)
		assert.Equal(t, "ii_first", *found.InvoiceItemID)
		assert.Equal(t, int64(50), *found.OverageCostCents)
	})

	t.Run("unknown period returns not found", func(t *testing.T) {
		err := repo.MarkInvoiced(ctx, uuid.New(), "ii_x", 10)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestUsagePeriodRepository_RecordPermanentFailure(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormUsagePeriodRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	sub := seedSubscription(t, db, "cust_fail", billing.PlanPro, "cus_5")
	period := seedPeriod(t, db, sub, start, 500)

	flagged, err := repo.RecordPermanentFailure(ctx, period.ID, 3)
	require.NoError(t, err)
	assert.False(t, flagged)

	flagged, err = repo.RecordPermanentFailure(ctx, period.ID, 3)
	require.NoError(t, err)
	assert.False(t, flagged)

	flagged, err = repo.RecordPermanentFailure(ctx, period.ID, 3)
	require.NoError(t, err)
	assert.True(t, flagged)

	found, err := repo.FindByID(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.PermanentFailures)
	assert.True(t, found.NeedsReview)

	t.Run("clear review resets the row", func(t *testing.T) {
		require.NoError(t, repo.ClearReview(ctx, period.ID))

		found, err := repo.FindByID(ctx, period.ID)
		require.NoError(t, err)
		assert.Zero(t, found.PermanentFailures)
		assert.False(t, found.NeedsReview)
	})

	t.Run("unknown period returns not found", func(t *testing.T) {
		_, err := repo.RecordPermanentFailure(ctx, uuid.New(), 3)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
