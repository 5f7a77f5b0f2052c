package repository

import (
	"context"
	"time"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusChange describes one requested lifecycle move.
type StatusChange struct {
	To             models.OrderStatus
	Note           string
	At             time.Time
	TrackingNumber *string
	PaymentStatus  *models.PaymentStatus
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	CreateBatch(ctx context.Context, orders []*models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByParentID(ctx context.Context, parentID string) ([]models.Order, error)
	FindByBuyerID(ctx context.Context, buyerID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	FindByFarmerID(ctx context.Context, farmerID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error)
	// ApplyTransition moves the order to change.To only if its current status
	// is a legal predecessor, and appends the matching history entry. When the
	// order exists but the move is illegal it returns the unchanged order and
	// ErrTransitionRejected.
	ApplyTransition(ctx context.Context, orderID string, change StatusChange) (*models.Order, error)
	// UpdateTracking replaces the tracking number and leaves the status alone.
	UpdateTracking(ctx context.Context, orderID, trackingNumber string, at time.Time) (*models.Order, error)
}

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new instance of GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func preloadOrder(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		})
}

// CreateBatch inserts the orders together with their items and first history rows.
func (r *GormOrderRepository) CreateBatch(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(orders).Error
}

// FindByID retrieves one order with items and history.
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := preloadOrder(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByParentID retrieves every order of one checkout in suffix order.
func (r *GormOrderRepository) FindByParentID(ctx context.Context, parentID string) ([]models.Order, error) {
	var orders []models.Order
	if err := preloadOrder(r.db.WithContext(ctx)).
		Where("parent_order_id = ?", parentID).
		Order("sequence ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindByBuyerID retrieves orders for a specific buyer with pagination
func (r *GormOrderRepository) FindByBuyerID(ctx context.Context, buyerID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	return r.paginate(ctx, r.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", buyerID), page, limit)
}

// FindByFarmerID retrieves the orders a farmer has to fulfil with pagination
func (r *GormOrderRepository) FindByFarmerID(ctx context.Context, farmerID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	return r.paginate(ctx, r.db.WithContext(ctx).Model(&models.Order{}).Where("farmer_id = ?", farmerID), page, limit)
}

// FindAll retrieves all orders with pagination
func (r *GormOrderRepository) FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	return r.paginate(ctx, r.db.WithContext(ctx).Model(&models.Order{}), page, limit)
}

func (r *GormOrderRepository) paginate(ctx context.Context, query *gorm.DB, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := preloadOrder(query).
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Order("sequence ASC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// ApplyTransition guards the UPDATE with the legal predecessors of change.To,
// so the lifecycle table holds even when two callers race on the same order.
func (r *GormOrderRepository) ApplyTransition(ctx context.Context, orderID string, change StatusChange) (*models.Order, error) {
	db := r.db.WithContext(ctx)

	from := models.PredecessorsOf(change.To)
	if len(from) == 0 {
		order, err := r.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return order, ErrTransitionRejected
	}

	updates := map[string]interface{}{
		"status":     change.To,
		"updated_at": change.At,
	}
	if change.TrackingNumber != nil {
		updates["tracking_number"] = *change.TrackingNumber
	}
	if change.PaymentStatus != nil {
		updates["payment_status"] = *change.PaymentStatus
	}
	switch change.To {
	case models.StatusCancelled, models.StatusRefunded:
		updates["canceled_at"] = change.At
	case models.StatusDelivered:
		updates["delivered_at"] = change.At
	}

	result := db.Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		order, err := r.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return order, ErrTransitionRejected
	}

	entry := models.OrderStatusEntry{
		OrderID:   orderID,
		Status:    change.To,
		Note:      change.Note,
		CreatedAt: change.At,
	}
	if err := db.Create(&entry).Error; err != nil {
		return nil, err
	}

	return r.FindByID(ctx, orderID)
}

func (r *GormOrderRepository) UpdateTracking(ctx context.Context, orderID, trackingNumber string, at time.Time) (*models.Order, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"tracking_number": trackingNumber,
			"updated_at":      at,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, orderID)
}
