package services

import (
	"context"

	"github.com/GHOST-031/agrova-sub001/backend/services/common/logger"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Populator fills response-only fields on committed orders.
type Populator interface {
	Populate(ctx context.Context, orders []models.Order) []*PopulationWarning
}

// Enricher attaches the buyer profile and product display fields. Either
// source may be nil.
type Enricher struct {
	buyers  BuyerDirectory
	details repository.ProductDetailsRepository
	logger  *zap.Logger
}

func NewEnricher(buyers BuyerDirectory, details repository.ProductDetailsRepository, logger *zap.Logger) *Enricher {
	return &Enricher{buyers: buyers, details: details, logger: logger}
}

// Populate never fails the caller; whatever could not be loaded comes back
// as warnings.
func (e *Enricher) Populate(ctx context.Context, orders []models.Order) []*PopulationWarning {
	if len(orders) == 0 {
		return nil
	}
	var warnings []*PopulationWarning

	if e.buyers != nil {
		cache := make(map[uuid.UUID]*models.BuyerSummary)
		for i := range orders {
			buyerID := orders[i].BuyerID
			buyer, ok := cache[buyerID]
			if !ok {
				var err error
				buyer, err = e.buyers.GetBuyer(ctx, buyerID)
				if err != nil {
					e.logger.Warn("Failed to load buyer profile",
						logger.RequestIDField(ctx),
						zap.String("buyer_id", buyerID.String()),
						zap.Error(err))
					warnings = append(warnings, &PopulationWarning{Source: "buyer profile", Err: err})
				}
				cache[buyerID] = buyer
			}
			orders[i].Buyer = buyer
		}
	}

	if e.details != nil {
		var ids []uuid.UUID
		seen := make(map[uuid.UUID]bool)
		for _, o := range orders {
			for _, it := range o.Items {
				if !seen[it.ProductID] {
					seen[it.ProductID] = true
					ids = append(ids, it.ProductID)
				}
			}
		}

		details, err := e.details.FetchDetails(ctx, ids)
		if err != nil {
			e.logger.Warn("Failed to load product details",
				logger.RequestIDField(ctx),
				zap.Int("products", len(ids)),
				zap.Error(err))
			warnings = append(warnings, &PopulationWarning{Source: "product details", Err: err})
		}
		for i := range orders {
			for j := range orders[i].Items {
				if d, ok := details[orders[i].Items[j].ProductID]; ok {
					d := d
					orders[i].Items[j].Details = &d
				}
			}
		}
	}

	return warnings
}
