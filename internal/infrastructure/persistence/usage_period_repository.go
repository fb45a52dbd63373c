package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ecoapi/backend/internal/domain/billing"
	"github.com/ecoapi/backend/internal/domain/shared"
)

// UsagePeriodModel is the GORM model for usage periods
type UsagePeriodModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID        string    `gorm:"type:varchar(255);not null;index:idx_usage_periods_customer_start,priority:1"`
	SubscriptionID    uuid.UUID `gorm:"type:uuid;not null;index"`
	PeriodStart       time.Time `gorm:"not null;index:idx_usage_periods_customer_start,priority:2"`
	PeriodEnd         time.Time `gorm:"not null;index"`
	APICalls          int64     `gorm:"not null;default:0"`
	OverageCalls      int64     `gorm:"not null;default:0"`
	OverageCostCents  *int64
	Invoiced          bool    `gorm:"not null;default:false"`
	InvoiceItemID     *string `gorm:"type:varchar(255)"`
	PermanentFailures int     `gorm:"not null;default:0"`
	NeedsReview       bool    `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName specifies the table name for GORM
func (UsagePeriodModel) TableName() string {
	return "usage_periods"
}

// ToEntity converts the model to a domain entity
func (m *UsagePeriodModel) ToEntity() *billing.UsagePeriod {
	return &billing.UsagePeriod{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		CustomerID:        m.CustomerID,
		SubscriptionID:    m.SubscriptionID,
		PeriodStart:       m.PeriodStart,
		PeriodEnd:         m.PeriodEnd,
		APICalls:          m.APICalls,
		OverageCalls:      m.OverageCalls,
		OverageCostCents:  m.OverageCostCents,
		Invoiced:          m.Invoiced,
		InvoiceItemID:     m.InvoiceItemID,
		PermanentFailures: m.PermanentFailures,
		NeedsReview:       m.NeedsReview,
	}
}

// FromEntity populates the model from a domain entity
func (m *UsagePeriodModel) FromEntity(p *billing.UsagePeriod) {
	m.ID = p.ID
	m.CustomerID = p.CustomerID
	m.SubscriptionID = p.SubscriptionID
	m.PeriodStart = p.PeriodStart
	m.PeriodEnd = p.PeriodEnd
	m.APICalls = p.APICalls
	m.OverageCalls = p.OverageCalls
	m.OverageCostCents = p.OverageCostCents
	m.Invoiced = p.Invoiced
	m.InvoiceItemID = p.InvoiceItemID
	m.PermanentFailures = p.PermanentFailures
	m.NeedsReview = p.NeedsReview
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// GormUsagePeriodRepository implements billing.UsagePeriodRepository using GORM
type GormUsagePeriodRepository struct {
	db *gorm.DB
}

// NewGormUsagePeriodRepository creates a new GORM-based usage period repository
func NewGormUsagePeriodRepository(db *gorm.DB) *GormUsagePeriodRepository {
	return &GormUsagePeriodRepository{db: db}
}

// Save persists a new usage period
func (r *GormUsagePeriodRepository) Save(ctx context.Context, period *billing.UsagePeriod) error {
	var model UsagePeriodModel
	model.FromEntity(period)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to save usage period: %w", err)
	}
	return nil
}

// FindByID retrieves a usage period by ID
func (r *GormUsagePeriodRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.UsagePeriod, error) {
	var model UsagePeriodModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find usage period: %w", err)
	}
	return model.ToEntity(), nil
}

// FindLatestByCustomer retrieves the customer's most recent usage period
func (r *GormUsagePeriodRepository) FindLatestByCustomer(ctx context.Context, customerID string) (*billing.UsagePeriod, error) {
	var model UsagePeriodModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("period_start DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest usage period: %w", err)
	}
	return model.ToEntity(), nil
}

// FindChargeable selects all charge candidates: uninvoiced closed periods
// with positive overage on an eligible plan, excluding rows held for manual
// review. Oldest periods come first so overdue rows always make progress.
func (r *GormUsagePeriodRepository) FindChargeable(ctx context.Context, referenceDate time.Time) ([]billing.ChargeablePeriod, error) {
	eligible := make([]string, 0, 1)
	for _, plan := range []billing.Plan{billing.PlanFree, billing.PlanPro, billing.PlanEnterprise} {
		if plan.OverageEligible() {
			eligible = append(eligible, plan.String())
		}
	}

	var periodModels []UsagePeriodModel
	err := r.db.WithContext(ctx).
		Table("usage_periods").
		Select("usage_periods.*").
		Joins("JOIN subscriptions ON subscriptions.id = usage_periods.subscription_id").
		Where("usage_periods.invoiced = ?", false).
		Where("usage_periods.needs_review = ?", false).
		Where("usage_periods.overage_calls > 0").
		Where("usage_periods.period_end <= ?", referenceDate).
		Where("subscriptions.plan IN ?", eligible).
		Order("usage_periods.period_end ASC").
		Find(&periodModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select chargeable periods: %w", err)
	}
	if len(periodModels) == 0 {
		return []billing.ChargeablePeriod{}, nil
	}

	subIDs := make([]uuid.UUID, 0, len(periodModels))
	for _, m := range periodModels {
		subIDs = append(subIDs, m.SubscriptionID)
	}

	var subModels []SubscriptionModel
	if err := r.db.WithContext(ctx).Where("id IN ?", subIDs).Find(&subModels).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscriptions for chargeable periods: %w", err)
	}
	subsByID := make(map[uuid.UUID]*billing.Subscription, len(subModels))
	for i := range subModels {
		subsByID[subModels[i].ID] = subModels[i].ToEntity()
	}

	result := make([]billing.ChargeablePeriod, 0, len(periodModels))
	for i := range periodModels {
		sub, ok := subsByID[periodModels[i].SubscriptionID]
		if !ok {
			// Join guaranteed the subscription existed moments ago; a miss
			// here means it was deleted mid-query. Skip the row.
			continue
		}
		result = append(result, billing.ChargeablePeriod{
			Period:       periodModels[i].ToEntity(),
			Subscription: sub,
		})
	}
	return result, nil
}

// MarkInvoiced records a successful submission with a single conditional
// write so two concurrent runs cannot both claim the same period.
func (r *GormUsagePeriodRepository) MarkInvoiced(ctx context.Context, id uuid.UUID, invoiceItemID string, costCents int64) error {
	result := r.db.WithContext(ctx).
		Model(&UsagePeriodModel{}).
		Where("id = ? AND invoiced = ?", id, false).
		Updates(map[string]interface{}{
			"invoiced":           true,
			"invoice_item_id":    invoiceItemID,
			"overage_cost_cents": costCents,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark usage period invoiced: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&UsagePeriodModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to mark usage period invoiced: %w", err)
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return billing.ErrAlreadyInvoiced
	}
	return nil
}

// RecordPermanentFailure increments the consecutive failure counter and flags
// the row for manual review once it reaches reviewThreshold.
func (r *GormUsagePeriodRepository) RecordPermanentFailure(ctx context.Context, id uuid.UUID, reviewThreshold int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&UsagePeriodModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"permanent_failures": gorm.Expr("permanent_failures + 1"),
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to record permanent failure: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, shared.ErrNotFound
	}

	if reviewThreshold > 0 {
		err := r.db.WithContext(ctx).
			Model(&UsagePeriodModel{}).
			Where("id = ? AND permanent_failures >= ? AND needs_review = ?", id, reviewThreshold, false).
			Update("needs_review", true).Error
		if err != nil {
			return false, fmt.Errorf("failed to flag usage period for review: %w", err)
		}
	}

	var model UsagePeriodModel
	if err := r.db.WithContext(ctx).Select("needs_review").Where("id = ?", id).First(&model).Error; err != nil {
		return false, fmt.Errorf("failed to read review flag: %w", err)
	}
	return model.NeedsReview, nil
}

// ClearReview resets the failure counter and review flag
func (r *GormUsagePeriodRepository) ClearReview(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&UsagePeriodModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"permanent_failures": 0,
			"needs_review":       false,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to clear review flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
