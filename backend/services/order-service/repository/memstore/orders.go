package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
)

type orderRepo struct {
	tx *memTx
}

func (r *orderRepo) CreateBatch(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.tx.write(ctx, func() error {
		s := r.tx.store
		for _, o := range orders {
			if _, exists := s.orders[o.ID]; exists {
				return fmt.Errorf("order %s already exists", o.ID)
			}
		}

		now := s.now()
		for _, o := range orders {
			if o.CreatedAt.IsZero() {
				o.CreatedAt = now
			}
			if o.UpdatedAt.IsZero() {
				o.UpdatedAt = o.CreatedAt
			}
			for i := range o.Items {
				if o.Items[i].ID == uuid.Nil {
					o.Items[i].ID = uuid.New()
				}
				o.Items[i].OrderID = o.ID
			}
			for i := range o.StatusHistory {
				s.historyID++
				o.StatusHistory[i].ID = s.historyID
				o.StatusHistory[i].OrderID = o.ID
			}

			stored := copyOrder(o)
			id := o.ID
			s.orders[id] = &stored
			r.tx.onRollback(func() { delete(s.orders, id) })
		}
		return nil
	})
}

// FindByID inside a transaction waits for the writer slot, so a lifecycle
// read never sees another transaction's uncommitted move.
func (r *orderRepo) FindByID(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.tx.lock(ctx); err != nil {
		return nil, err
	}
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (r *orderRepo) FindByParentID(ctx context.Context, parentID string) ([]models.Order, error) {
	return r.filter(ctx, func(o *models.Order) bool { return o.ParentOrderID == parentID })
}

func (r *orderRepo) FindByBuyerID(ctx context.Context, buyerID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	orders, err := r.filter(ctx, func(o *models.Order) bool { return o.BuyerID == buyerID })
	return paginate(orders, page, limit, err)
}

func (r *orderRepo) FindByFarmerID(ctx context.Context, farmerID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	orders, err := r.filter(ctx, func(o *models.Order) bool { return o.FarmerID == farmerID })
	return paginate(orders, page, limit, err)
}

func (r *orderRepo) FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	orders, err := r.filter(ctx, func(*models.Order) bool { return true })
	return paginate(orders, page, limit, err)
}

func (r *orderRepo) filter(ctx context.Context, keep func(*models.Order) bool) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.tx.store
	s.mu.RLock()
	orders := make([]models.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			orders = append(orders, copyOrder(o))
		}
	}
	s.mu.RUnlock()

	sortOrders(orders)
	return orders, nil
}

func paginate(orders []models.Order, page, limit int, err error) ([]models.Order, int64, error) {
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(orders))
	offset := (page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	if offset >= len(orders) {
		return []models.Order{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end], total, nil
}

func (r *orderRepo) ApplyTransition(ctx context.Context, orderID string, change repository.StatusChange) (*models.Order, error) {
	var result models.Order
	rejected := false

	err := r.tx.write(ctx, func() error {
		s := r.tx.store
		o, ok := s.orders[orderID]
		if !ok {
			return repository.ErrNotFound
		}
		if !models.CanTransition(o.Status, change.To) {
			rejected = true
			result = copyOrder(o)
			return nil
		}

		before := copyOrder(o)
		r.tx.onRollback(func() { *o = before })

		at := change.At
		o.Status = change.To
		o.UpdatedAt = at
		if change.TrackingNumber != nil {
			tn := *change.TrackingNumber
			o.TrackingNumber = &tn
		}
		if change.PaymentStatus != nil {
			o.Payment.Status = *change.PaymentStatus
		}
		switch change.To {
		case models.StatusCancelled, models.StatusRefunded:
			o.CanceledAt = &at
		case models.StatusDelivered:
			o.DeliveredAt = &at
		}

		s.historyID++
		o.StatusHistory = append(o.StatusHistory, models.OrderStatusEntry{
			ID:        s.historyID,
			OrderID:   orderID,
			Status:    change.To,
			Note:      change.Note,
			CreatedAt: at,
		})
		result = copyOrder(o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejected {
		return &result, repository.ErrTransitionRejected
	}
	return &result, nil
}

func (r *orderRepo) UpdateTracking(ctx context.Context, orderID, trackingNumber string, at time.Time) (*models.Order, error) {
	var result models.Order
	err := r.tx.write(ctx, func() error {
		o, ok := r.tx.store.orders[orderID]
		if !ok {
			return repository.ErrNotFound
		}
		before := copyOrder(o)
		r.tx.onRollback(func() { *o = before })

		tn := trackingNumber
		o.TrackingNumber = &tn
		o.UpdatedAt = at
		result = copyOrder(o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
