package services

import (
	"context"
	"strconv"
	"time"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutMeta is what every order of one checkout shares.
type CheckoutMeta struct {
	ParentOrderID   string
	BuyerID         uuid.UUID
	DeliveryAddress models.Address
	Payment         models.Payment
	Charges         models.SharedCharges
	IdempotencyKey  string
	RequestHash     string
	CreatedAt       time.Time
}

// OrderWriter persists the split groups. It runs on the transaction it is
// given and never begins or ends one.
type OrderWriter struct{}

func NewOrderWriter() *OrderWriter {
	return &OrderWriter{}
}

// OrderID is the id of the n-th (1-based) order of a checkout.
func OrderID(parentOrderID string, n int) string {
	return parentOrderID + "-" + strconv.Itoa(n)
}

// Create writes the checkout group row and one order per group, numbered in
// group order.
func (w *OrderWriter) Create(ctx context.Context, tx repository.Tx, meta CheckoutMeta, groups []OrderGroup) ([]*models.Order, error) {
	payment := meta.Payment
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	status := models.InitialStatus(payment)

	summary := summarize(groups)
	checkout := &models.CheckoutGroup{
		ID:          meta.ParentOrderID,
		BuyerID:     meta.BuyerID,
		RequestHash: meta.RequestHash,
		Subtotal:    summary.Subtotal,
		Delivery:    summary.Delivery,
		Discount:    summary.Discount,
		Tax:         summary.Tax,
		Total:       summary.Total,
		OrderCount:  len(groups),
		CreatedAt:   meta.CreatedAt,
	}
	if meta.IdempotencyKey != "" {
		key := meta.IdempotencyKey
		checkout.IdempotencyKey = &key
	}
	if err := tx.Checkouts().Create(ctx, checkout); err != nil {
		return nil, &PersistenceError{Op: "create checkout group", Err: err}
	}

	orders := make([]*models.Order, len(groups))
	for i, g := range groups {
		id := OrderID(meta.ParentOrderID, i+1)
		items := make([]models.OrderItem, len(g.Lines))
		for j, l := range g.Lines {
			items[j] = models.OrderItem{
				ID:          uuid.New(),
				OrderID:     id,
				ProductID:   l.Product.ID,
				ProductName: l.Product.Name,
				Unit:        l.Product.Unit,
				Quantity:    l.Quantity,
				UnitPrice:   l.Product.Price.Round(2),
				LineTotal:   LineTotal(l),
			}
		}

		orders[i] = &models.Order{
			ID:              id,
			ParentOrderID:   meta.ParentOrderID,
			Sequence:        i + 1,
			BuyerID:         meta.BuyerID,
			FarmerID:        g.FarmerID,
			DeliveryAddress: meta.DeliveryAddress,
			Payment:         payment,
			Pricing:         g.Pricing,
			Status:          status,
			CreatedAt:       meta.CreatedAt,
			UpdatedAt:       meta.CreatedAt,
			Items:           items,
			StatusHistory: []models.OrderStatusEntry{{
				OrderID:   id,
				Status:    status,
				Note:      "Order placed",
				CreatedAt: meta.CreatedAt,
			}},
		}
	}

	if err := tx.Orders().CreateBatch(ctx, orders); err != nil {
		return nil, &PersistenceError{Op: "create orders", Err: err}
	}
	return orders, nil
}

// restockDeltas returns what cancelling order gives back to inventory.
func restockDeltas(order *models.Order) []models.StockDelta {
	deltas := make([]models.StockDelta, 0, len(order.Items))
	for _, it := range order.Items {
		deltas = append(deltas, models.StockDelta{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return deltas
}

func sumDecimals(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
