package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types published by order-service.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Event types consumed from payment-service.
const (
	PaymentEventSucceeded = "payment_succeeded"
	PaymentEventFailed    = "payment_failed"
)

// OrderCreatedEvent is published once per order after the checkout commits.
type OrderCreatedEvent struct {
	EventType     string          `json:"event_type"`
	OrderID       string          `json:"order_id"`
	ParentOrderID string          `json:"parent_order_id"`
	BuyerID       string          `json:"buyer_id"`
	FarmerID      string          `json:"farmer_id"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
	Timestamp     time.Time       `json:"timestamp"`
}

// OrderStatusChangedEvent is published after every applied transition.
type OrderStatusChangedEvent struct {
	EventType     string      `json:"event_type"`
	OrderID       string      `json:"order_id"`
	ParentOrderID string      `json:"parent_order_id"`
	BuyerID       string      `json:"buyer_id"`
	FarmerID      string      `json:"farmer_id"`
	From          OrderStatus `json:"from"`
	To            OrderStatus `json:"to"`
	Note          string      `json:"note,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// PaymentEvent is sent by payment-service for a whole checkout.
type PaymentEvent struct {
	Type          string          `json:"type"`
	ParentOrderID string          `json:"parent_order_id"`
	BuyerID       string          `json:"buyer_id"`
	PaymentID     string          `json:"payment_id,omitempty"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Timestamp     time.Time       `json:"timestamp,omitempty"`
}
