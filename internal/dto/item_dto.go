package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateItemRequest struct {
	Name      string          `json:"name"      validate:"required,max=120"`
	Supplier  string          `json:"supplier"  validate:"required,max=120"`
	Quantity  int             `json:"quantity"  validate:"required,gt=0"`
	CostPrice decimal.Decimal `json:"costPrice" validate:"required,gt=0"`
	SalePrice decimal.Decimal `json:"salePrice" validate:"required,gt=0"`
}

// UpdateItemRequest is a partial update: nil fields are left untouched.
// Quantity 0 deletes the item.
type UpdateItemRequest struct {
	Name      *string          `json:"name"      validate:"omitempty,max=120"`
	Supplier  *string          `json:"supplier"  validate:"omitempty,max=120"`
	Quantity  *int             `json:"quantity"  validate:"omitempty,min=0"`
	CostPrice *decimal.Decimal `json:"costPrice"`
	SalePrice *decimal.Decimal `json:"salePrice"`
}

// ItemFilter narrows GET /items. Search matches name and supplier by
// substring, quantity exactly and prices by prefix.
type ItemFilter struct {
	Search string `form:"search" validate:"omitempty,max=120"`
}

type MovementFilter struct {
	Limit int `form:"limit,default=100" validate:"omitempty,min=1,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ItemResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Supplier  string          `json:"supplier"`
	Quantity  int             `json:"quantity"`
	CostPrice decimal.Decimal `json:"costPrice"`
	SalePrice decimal.Decimal `json:"salePrice"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

// UpdateItemResponse carries either the updated item or the deletion notice
// when the quantity was set to zero.
type UpdateItemResponse struct {
	Item    *ItemResponse `json:"item,omitempty"`
	Deleted bool          `json:"deleted"`
	Message string        `json:"message,omitempty"`
}

type StockMovementResponse struct {
	ID             string  `json:"id"`
	ItemID         string  `json:"itemId"`
	Kind           string  `json:"kind"`
	Delta          int     `json:"delta"`
	QuantityBefore int     `json:"quantityBefore"`
	QuantityAfter  int     `json:"quantityAfter"`
	Reason         string  `json:"reason"`
	SaleID         *string `json:"saleId"`
	CreatedAt      string  `json:"createdAt"`
}
