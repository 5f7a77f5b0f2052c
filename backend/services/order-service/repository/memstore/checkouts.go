package memstore

import (
	"context"
	"fmt"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
)

type checkoutRepo struct {
	tx *memTx
}

func (r *checkoutRepo) Create(ctx context.Context, group *models.CheckoutGroup) error {
	return r.tx.write(ctx, func() error {
		s := r.tx.store
		if _, exists := s.checkouts[group.ID]; exists {
			return fmt.Errorf("checkout %s already exists", group.ID)
		}
		var key *idemKey
		if group.IdempotencyKey != nil {
			key = &idemKey{buyer: group.BuyerID, key: *group.IdempotencyKey}
			if _, taken := s.idem[*key]; taken {
				return repository.ErrDuplicateIdempotencyKey
			}
		}
		if group.CreatedAt.IsZero() {
			group.CreatedAt = s.now()
		}

		stored := *group
		if group.IdempotencyKey != nil {
			k := *group.IdempotencyKey
			stored.IdempotencyKey = &k
		}
		s.checkouts[group.ID] = &stored
		id := group.ID
		r.tx.onRollback(func() { delete(s.checkouts, id) })

		if key != nil {
			k := *key
			s.idem[k] = id
			r.tx.onRollback(func() { delete(s.idem, k) })
		}
		return nil
	})
}

func (r *checkoutRepo) FindByIdempotencyKey(ctx context.Context, buyerID uuid.UUID, key string) (*models.CheckoutGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idem[idemKey{buyer: buyerID, key: key}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	group := *s.checkouts[id]
	return &group, nil
}
