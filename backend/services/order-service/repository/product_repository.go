package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductRepository is the catalog's stock-of-record.
type ProductRepository interface {
	// FetchMany returns the sellable products among ids in one read.
	FetchMany(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	// ConditionalBulkDecrement applies every delta whose product still has
	// enough stock at write time and returns the ids it applied.
	ConditionalBulkDecrement(ctx context.Context, deltas []models.StockDelta) ([]uuid.UUID, error)
	// RestoreStock gives quantities back without any precondition.
	RestoreStock(ctx context.Context, deltas []models.StockDelta) error
}

// GormProductRepository implements ProductRepository using GORM.
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository.
func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &GormProductRepository{db: db}
}

// FetchMany retrieves active products by id.
func (r *GormProductRepository) FetchMany(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ConditionalBulkDecrement issues a single UPDATE ... FROM (VALUES ...) so the
// whole batch is one statement; rows whose stock dropped below the requested
// quantity since they were read are simply not matched.
func (r *GormProductRepository) ConditionalBulkDecrement(ctx context.Context, deltas []models.StockDelta) ([]uuid.UUID, error) {
	if len(deltas) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(deltas))
	args := make([]interface{}, 0, len(deltas)*2)
	for _, d := range deltas {
		values = append(values, "(CAST(? AS uuid), CAST(? AS integer))")
		args = append(args, d.ProductID, d.Quantity)
	}

	query := fmt.Sprintf(`UPDATE products AS p
SET stock = p.stock - v.qty,
    sold_count = p.sold_count + v.qty,
    is_active = CASE WHEN p.stock - v.qty = 0 THEN false ELSE p.is_active END,
    updated_at = NOW()
FROM (VALUES %s) AS v(id, qty)
WHERE p.id = v.id AND p.stock >= v.qty
RETURNING p.id`, strings.Join(values, ", "))

	var rows []struct {
		ID uuid.UUID
	}
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	applied := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		applied = append(applied, row.ID)
	}
	return applied, nil
}

// RestoreStock increments stock for each delta. A product that had been
// switched off by selling out is switched back on; one a farmer deactivated
// with stock left stays off.
func (r *GormProductRepository) RestoreStock(ctx context.Context, deltas []models.StockDelta) error {
	for _, d := range deltas {
		result := r.db.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", d.ProductID).
			UpdateColumns(map[string]interface{}{
				"stock":      gorm.Expr("stock + ?", d.Quantity),
				"sold_count": gorm.Expr("GREATEST(sold_count - ?, 0)", d.Quantity),
				"is_active":  gorm.Expr("CASE WHEN stock = 0 THEN true ELSE is_active END"),
				"updated_at": gorm.Expr("NOW()"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("restore stock for product %s: %w", d.ProductID, ErrNotFound)
		}
	}
	return nil
}
