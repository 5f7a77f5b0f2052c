package repository

import (
	"context"
	"errors"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CheckoutRepository stores the parent record of each checkout.
type CheckoutRepository interface {
	Create(ctx context.Context, group *models.CheckoutGroup) error
	FindByIdempotencyKey(ctx context.Context, buyerID uuid.UUID, key string) (*models.CheckoutGroup, error)
}

// GormCheckoutRepository implements CheckoutRepository using GORM.
type GormCheckoutRepository struct {
	db *gorm.DB
}

// NewGormCheckoutRepository creates a new GormCheckoutRepository.
func NewGormCheckoutRepository(db *gorm.DB) CheckoutRepository {
	return &GormCheckoutRepository{db: db}
}

// Create inserts the checkout group. The (buyer_id, idempotency_key) unique
// index turns a concurrent duplicate into ErrDuplicateIdempotencyKey; this
// relies on gorm.Config.TranslateError.
func (r *GormCheckoutRepository) Create(ctx context.Context, group *models.CheckoutGroup) error {
	err := r.db.WithContext(ctx).Create(group).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateIdempotencyKey
	}
	return err
}

// FindByIdempotencyKey retrieves the checkout a buyer created with key.
func (r *GormCheckoutRepository) FindByIdempotencyKey(ctx context.Context, buyerID uuid.UUID, key string) (*models.CheckoutGroup, error) {
	var group models.CheckoutGroup
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND idempotency_key = ?", buyerID, key).
		First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}
