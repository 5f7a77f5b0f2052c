package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Address is copied verbatim onto every order of a checkout and never edited afterwards.
type Address struct {
	FullName   string `gorm:"type:varchar(120);not null" json:"full_name" binding:"required"`
	Phone      string `gorm:"type:varchar(20);not null" json:"phone" binding:"required"`
	Line1      string `gorm:"type:varchar(255);not null" json:"line1" binding:"required"`
	Line2      string `gorm:"type:varchar(255)" json:"line2,omitempty"`
	City       string `gorm:"type:varchar(100);not null" json:"city" binding:"required"`
	State      string `gorm:"type:varchar(100)" json:"state,omitempty"`
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code" binding:"required"`
	Country    string `gorm:"type:varchar(2);not null;default:'IN'" json:"country,omitempty"`
}

// IsZero reports whether no address was supplied.
func (a Address) IsZero() bool {
	return a.Line1 == "" && a.City == "" && a.PostalCode == ""
}

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodWallet PaymentMethod = "wallet"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is the tuple handed over by the payment layer at checkout.
type Payment struct {
	Method PaymentMethod `gorm:"type:varchar(20);not null" json:"method" binding:"required,oneof=cod card upi wallet"`
	Status PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status" binding:"omitempty,oneof=pending success failed"`
}

// Pricing is one order's share of the checkout. Total is always
// Subtotal + DeliveryShare + TaxShare - DiscountShare.
type Pricing struct {
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	DeliveryShare decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"delivery_share"`
	DiscountShare decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount_share"`
	TaxShare      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_share"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
}

// Order is one farmer's part of a checkout.
type Order struct {
	ID              string             `gorm:"type:varchar(64);primaryKey" json:"id"`
	ParentOrderID   string             `gorm:"type:varchar(64);not null;index" json:"parent_order_id"`
	Sequence        int                `gorm:"not null" json:"sequence"`
	BuyerID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"buyer_id"`
	FarmerID        uuid.UUID          `gorm:"type:uuid;not null;index" json:"farmer_id"`
	DeliveryAddress Address            `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery_address"`
	Payment         Payment            `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	Pricing         Pricing            `gorm:"embedded" json:"pricing"`
	Status          OrderStatus        `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TrackingNumber  *string            `gorm:"type:varchar(64)" json:"tracking_number,omitempty"`
	CanceledAt      *time.Time         `json:"canceled_at,omitempty"`
	DeliveredAt     *time.Time         `json:"delivered_at,omitempty"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	Items           []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	StatusHistory   []OrderStatusEntry `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"status_history"`

	// Filled after commit for responses only.
	Buyer *BuyerSummary `gorm:"-" json:"buyer,omitempty"`
}

type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     string          `gorm:"type:varchar(64);not null;index" json:"order_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"product_name"`
	Unit        string          `gorm:"type:varchar(20);not null" json:"unit"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`

	Details *ProductDetails `gorm:"-" json:"details,omitempty"`
}

// OrderStatusEntry is one append-only row of an order's history.
type OrderStatusEntry struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderID   string      `gorm:"type:varchar(64);not null;index" json:"-"`
	Status    OrderStatus `gorm:"type:varchar(20);not null" json:"status"`
	Note      string      `gorm:"type:text" json:"note,omitempty"`
	CreatedAt time.Time   `gorm:"not null" json:"timestamp"`
}

func (OrderStatusEntry) TableName() string {
	return "order_status_history"
}

// BuyerSummary is the buyer profile attached to checkout responses.
type BuyerSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Phone string    `json:"phone,omitempty"`
}

// ProductDetails are catalog display fields that are not part of the order record.
type ProductDetails struct {
	ProductID    uuid.UUID `json:"-"`
	Description  string    `json:"description,omitempty"`
	Images       []string  `json:"images,omitempty"`
	CategoryPath []string  `json:"category_path,omitempty"`
	FarmName     string    `json:"farm_name,omitempty"`
}
