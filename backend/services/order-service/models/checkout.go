package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutGroup is the parent record shared by all orders of one checkout.
// Its ID is the parent order id.
type CheckoutGroup struct {
	ID             string          `gorm:"type:varchar(64);primaryKey" json:"parent_order_id"`
	BuyerID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_checkout_buyer_idem,priority:1" json:"buyer_id"`
	IdempotencyKey *string         `gorm:"type:varchar(128);uniqueIndex:idx_checkout_buyer_idem,priority:2" json:"-"`
	RequestHash    string          `gorm:"type:varchar(64);not null" json:"-"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Delivery       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"delivery"`
	Discount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount"`
	Tax            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax"`
	Total          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	OrderCount     int             `gorm:"not null" json:"order_count"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// CartLine is one requested product. UnitPriceHint is what the client saw;
// the catalog price is always used.
type CartLine struct {
	ProductID     uuid.UUID        `json:"product_id" binding:"required"`
	Quantity      int              `json:"quantity"`
	UnitPriceHint *decimal.Decimal `json:"unit_price_hint,omitempty"`
}

// SharedCharges are cart-level amounts split across farmers.
type SharedCharges struct {
	Delivery decimal.Decimal `json:"delivery"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
}

// CheckoutRequest is the POST /checkout payload.
type CheckoutRequest struct {
	Items           []CartLine    `json:"items" binding:"dive"`
	DeliveryAddress *Address      `json:"delivery_address"`
	Payment         Payment       `json:"payment"`
	Charges         SharedCharges `json:"charges"`
}

// CheckoutSummary reconciles the split orders with the cart.
type CheckoutSummary struct {
	OrderCount int             `json:"order_count"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Delivery   decimal.Decimal `json:"delivery"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
}

// CheckoutResult is returned for a committed (or replayed) checkout.
type CheckoutResult struct {
	ParentOrderID string          `json:"parent_order_id"`
	Orders        []Order         `json:"orders"`
	Summary       CheckoutSummary `json:"summary"`
	Warnings      []string        `json:"warnings,omitempty"`
	Replayed      bool            `json:"replayed,omitempty"`
}

// UpdateStatusRequest is the PATCH /orders/:id/status payload.
type UpdateStatusRequest struct {
	Status         OrderStatus `json:"status" binding:"required"`
	Note           string      `json:"note" binding:"max=500"`
	TrackingNumber *string     `json:"tracking_number,omitempty" binding:"omitempty,max=64"`
}

// CancelOrderRequest is the optional POST /orders/:id/cancel payload.
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}
