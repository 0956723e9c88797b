package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a stocked product. An item whose quantity reaches zero is deleted,
// so a persisted Item always has Quantity > 0.
type Item struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string          `gorm:"not null"`
	Supplier  string          `gorm:"not null"`
	Quantity  int             `gorm:"not null"`
	CostPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SalePrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
