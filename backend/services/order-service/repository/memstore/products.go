package memstore

import (
	"context"
	"fmt"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
)

type productRepo struct {
	tx *memTx
}

func (r *productRepo) FetchMany(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]models.Product, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := s.products[id]; ok && p.IsActive {
			products = append(products, *p)
		}
	}
	return products, nil
}

func (r *productRepo) ConditionalBulkDecrement(ctx context.Context, deltas []models.StockDelta) ([]uuid.UUID, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	var applied []uuid.UUID
	err := r.tx.write(ctx, func() error {
		s := r.tx.store
		for _, d := range deltas {
			p, ok := s.products[d.ProductID]
			if !ok || p.Stock < d.Quantity {
				continue
			}
			before := *p
			r.tx.onRollback(func() { *p = before })

			p.Stock -= d.Quantity
			p.SoldCount += d.Quantity
			if p.Stock == 0 {
				p.IsActive = false
			}
			p.UpdatedAt = s.now()
			applied = append(applied, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (r *productRepo) RestoreStock(ctx context.Context, deltas []models.StockDelta) error {
	return r.tx.write(ctx, func() error {
		s := r.tx.store
		for _, d := range deltas {
			p, ok := s.products[d.ProductID]
			if !ok {
				return fmt.Errorf("restore stock for product %s: %w", d.ProductID, repository.ErrNotFound)
			}
			before := *p
			r.tx.onRollback(func() { *p = before })

			if p.Stock == 0 {
				p.IsActive = true
			}
			p.Stock += d.Quantity
			p.SoldCount -= d.Quantity
			if p.SoldCount < 0 {
				p.SoldCount = 0
			}
			p.UpdatedAt = s.now()
		}
		return nil
	})
}
