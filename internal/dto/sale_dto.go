package dto

import "github.com/shopspring/decimal"

// ─── Filter / List ──────────────────────────────────────────────────────────

// SaleFilter is bound from the query string of GET /sales and the report
// endpoints. Dates are YYYY-MM-DD; To is inclusive.
type SaleFilter struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Page  int    `form:"page,default=1"   validate:"min=1"`
	Limit int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SaleLineRequest struct {
	ItemID   string `json:"itemId"   validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	// UnitPrice is the price the client showed; a mismatch with the current
	// sale price rejects the sale.
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

// CreateSaleRequest accepts either the multi-line cart form (Items) or the
// single-line form (ItemID, Quantity, UnitPrice).
type CreateSaleRequest struct {
	BuyerRef      *string           `json:"buyerRef"      validate:"omitempty,max=120"`
	CustomerID    *string           `json:"customerId"    validate:"omitempty,max=120"`
	BuyerEmail    *string           `json:"buyerEmail"    validate:"omitempty,email"`
	PaymentMethod string            `json:"paymentMethod" validate:"required"`
	Items         []SaleLineRequest `json:"items"         validate:"omitempty,dive"`

	ItemID    string           `json:"itemId"    validate:"omitempty,uuid"`
	Item      string           `json:"item"`
	Quantity  int              `json:"quantity"  validate:"omitempty,gt=0"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

// Lines normalizes both request forms into cart lines.
func (r CreateSaleRequest) Lines() []SaleLineRequest {
	if len(r.Items) > 0 {
		return r.Items
	}
	if r.ItemID == "" {
		return nil
	}
	return []SaleLineRequest{{ItemID: r.ItemID, Quantity: r.Quantity, UnitPrice: r.UnitPrice}}
}

// Buyer returns buyerRef, falling back to the legacy customerId field.
func (r CreateSaleRequest) Buyer() *string {
	if r.BuyerRef != nil {
		return r.BuyerRef
	}
	return r.CustomerID
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SaleItemResponse struct {
	ItemID    string          `json:"itemId"`
	ItemName  string          `json:"itemName"`
	Supplier  string          `json:"supplier"`
	Quantity  int             `json:"quantity"`
	CostPrice decimal.Decimal `json:"costPrice"`
	SalePrice decimal.Decimal `json:"salePrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type SaleResponse struct {
	ID            string             `json:"id"`
	BuyerRef      *string            `json:"buyerRef"`
	PaymentMethod string             `json:"paymentMethod"`
	TotalQuantity int                `json:"totalQuantity"`
	TotalValue    decimal.Decimal    `json:"totalValue"`
	TotalCost     decimal.Decimal    `json:"totalCost"`
	Items         []SaleItemResponse `json:"items"`
	// DepletedItemIDs lists items removed from inventory because this sale
	// took their last unit.
	DepletedItemIDs []string `json:"depletedItemIds,omitempty"`
	CreatedAt       string   `json:"createdAt"`
}

type PaymentMethodTotal struct {
	PaymentMethod string          `json:"paymentMethod"`
	Sales         int             `json:"sales"`
	Value         decimal.Decimal `json:"value"`
}

// SalesSummaryResponse is the cash register view over a window.
type SalesSummaryResponse struct {
	From          string               `json:"from"`
	To            string               `json:"to"`
	Sales         int                  `json:"sales"`
	TotalQuantity int                  `json:"totalQuantity"`
	TotalValue    decimal.Decimal      `json:"totalValue"`
	TotalCost     decimal.Decimal      `json:"totalCost"`
	GrossProfit   decimal.Decimal      `json:"grossProfit"`
	ByPayment     []PaymentMethodTotal `json:"byPaymentMethod"`
}
