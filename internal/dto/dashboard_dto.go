package dto

import "github.com/shopspring/decimal"

type DashboardFilter struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Limit int    `form:"limit" validate:"omitempty,min=1,max=50"`
}

// ItemPerformance is one ranked row of the dashboard.
type ItemPerformance struct {
	ItemID    string          `json:"itemId"`
	ItemName  string          `json:"itemName"`
	UnitsSold int             `json:"unitsSold"`
	Revenue   decimal.Decimal `json:"revenue"`
	Profit    decimal.Decimal `json:"profit"`
}

type LowStockItem struct {
	ItemID   string `json:"itemId"`
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity"`
}

type DashboardResponse struct {
	From        string            `json:"from"`
	To          string            `json:"to"`
	TopByVolume []ItemPerformance `json:"topByVolume"`
	TopByProfit []ItemPerformance `json:"topByProfit"`
	LowStock    []LowStockItem    `json:"lowStock"`
}
