package model

import (
	"time"

	"github.com/google/uuid"
)

// Stock movement kinds.
const (
	MovementCreate = "create"
	MovementAdjust = "adjust"
	MovementSale   = "sale"
	MovementDelete = "delete"
)

// StockMovement records every change to an item's quantity.
// Rows are immutable and outlive the item they reference (no FK on ItemID).
type StockMovement struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ItemID         uuid.UUID `gorm:"type:uuid;not null;index"`
	Kind           string    `gorm:"type:varchar(16);not null"`
	Delta          int       `gorm:"not null"` // positive = in, negative = out
	QuantityBefore int       `gorm:"not null"`
	QuantityAfter  int       `gorm:"not null"`
	Reason         string
	SaleID         *uuid.UUID `gorm:"type:uuid"`
	CreatedAt      time.Time
}
