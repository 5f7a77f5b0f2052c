package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a farmer's listing together with its stock counters. A product
// is sellable while IsActive is set; it is cleared when stock reaches zero.
type Product struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FarmerID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"farmer_id"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Unit      string          `gorm:"type:varchar(20);not null;default:'kg'" json:"unit"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Stock     int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	SoldCount int             `gorm:"not null;default:0" json:"sold_count"`
	IsActive  bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockDelta is a quantity to take from or give back to one product.
type StockDelta struct {
	ProductID uuid.UUID
	Quantity  int
}
