package services

import (
	"context"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PricedLine is a cart line resolved against the catalog.
type PricedLine struct {
	Product  models.Product
	Quantity int
}

// ReservationEngine validates and takes stock for a cart inside the caller's
// transaction.
type ReservationEngine struct {
	logger *zap.Logger
}

func NewReservationEngine(logger *zap.Logger) *ReservationEngine {
	return &ReservationEngine{logger: logger}
}

// Reserve fetches every product in one read, checks availability, then
// decrements all of them with one conditional batch write. Lines must already
// be merged (see mergeLines). On error nothing was written that the caller's
// rollback would not undo.
func (e *ReservationEngine) Reserve(ctx context.Context, tx repository.Tx, lines []models.CartLine) ([]PricedLine, error) {
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		if l.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		ids[i] = l.ProductID
	}

	products, err := tx.Products().FetchMany(ctx, ids)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch products", Err: err}
	}

	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	if len(byID) != len(ids) {
		var missing []uuid.UUID
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, &ProductUnavailableError{ProductIDs: missing}
	}

	priced := make([]PricedLine, len(lines))
	deltas := make([]models.StockDelta, len(lines))
	for i, l := range lines {
		p := byID[l.ProductID]
		if p.Stock < l.Quantity {
			return nil, &InsufficientStockError{ProductID: p.ID, Available: p.Stock, Requested: l.Quantity}
		}
		if l.UnitPriceHint != nil && !l.UnitPriceHint.Equal(p.Price) {
			e.logger.Debug("Client price differs from catalog price",
				zap.String("product_id", p.ID.String()),
				zap.String("hint", l.UnitPriceHint.String()),
				zap.String("price", p.Price.String()))
		}
		priced[i] = PricedLine{Product: p, Quantity: l.Quantity}
		deltas[i] = models.StockDelta{ProductID: p.ID, Quantity: l.Quantity}
	}

	applied, err := tx.Products().ConditionalBulkDecrement(ctx, deltas)
	if err != nil {
		return nil, &PersistenceError{Op: "decrement stock", Err: err}
	}
	if len(applied) != len(deltas) {
		got := make(map[uuid.UUID]bool, len(applied))
		for _, id := range applied {
			got[id] = true
		}
		for _, d := range deltas {
			if !got[d.ProductID] {
				return nil, &StockRaceLostError{ProductID: d.ProductID}
			}
		}
		return nil, &StockRaceLostError{ProductID: deltas[0].ProductID}
	}

	return priced, nil
}

// soldOut counts the products a reservation emptied, judged against the
// stock read just before the decrement.
func soldOut(lines []PricedLine) int {
	n := 0
	for _, l := range lines {
		if l.Product.Stock == l.Quantity {
			n++
		}
	}
	return n
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(lines []models.CartLine) []models.CartLine {
	merged := make([]models.CartLine, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}
