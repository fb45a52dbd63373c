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

// SubscriptionModel is the GORM model for subscriptions
type SubscriptionModel struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID           string    `gorm:"type:varchar(255);not null;index"`
	Plan                 string    `gorm:"type:varchar(50);not null"`
	StripeCustomerID     string    `gorm:"type:varchar(255)"`
	StripeSubscriptionID string    `gorm:"type:varchar(255)"`
	Status               string    `gorm:"type:varchar(50);not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName specifies the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToEntity converts the model to a domain entity
func (m *SubscriptionModel) ToEntity() *billing.Subscription {
	return &billing.Subscription{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		CustomerID:           m.CustomerID,
		Plan:                 billing.Plan(m.Plan),
		StripeCustomerID:     m.StripeCustomerID,
		StripeSubscriptionID: m.StripeSubscriptionID,
		Status:               billing.SubscriptionStatus(m.Status),
	}
}

// FromEntity populates the model from a domain entity
func (m *SubscriptionModel) FromEntity(s *billing.Subscription) {
	m.ID = s.ID
	m.CustomerID = s.CustomerID
	m.Plan = s.Plan.String()
	m.StripeCustomerID = s.StripeCustomerID
	m.StripeSubscriptionID = s.StripeSubscriptionID
	m.Status = s.Status.String()
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GORM-based subscription repository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByID retrieves a subscription by ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	var model SubscriptionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return model.ToEntity(), nil
}

// FindLatestByCustomer retrieves the customer's most recent subscription
func (r *GormSubscriptionRepository) FindLatestByCustomer(ctx context.Context, customerID string) (*billing.Subscription, error) {
	var model SubscriptionModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest subscription: %w", err)
	}
	return model.ToEntity(), nil
}
