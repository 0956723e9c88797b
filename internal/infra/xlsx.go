package infra

import (
	"fmt"
	"io"

	"estoque/internal/model"

	"github.com/xuri/excelize/v2"
)

// SalesSheet is the worksheet name used by WriteSalesXLSX.
const SalesSheet = "Vendas"

var salesHeader = []interface{}{
	"sale_id", "created_at", "buyer", "payment_method",
	"item_id", "item", "supplier", "quantity", "cost_price", "sale_price", "line_total",
}

// WriteSalesXLSX writes one row per sale line to w.
func WriteSalesXLSX(w io.Writer, sales []model.Sale) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	def := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(def, SalesSheet); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SalesSheet, "A1", &salesHeader); err != nil {
		return fmt.Errorf("xlsx: header: %w", err)
	}

	row := 2
	for _, s := range sales {
		buyer := ""
		if s.BuyerRef != nil {
			buyer = *s.BuyerRef
		}
		for _, it := range s.Items {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return fmt.Errorf("xlsx: cell: %w", err)
			}
			values := []interface{}{
				s.ID.String(),
				s.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
				buyer,
				string(s.PaymentMethod),
				it.ItemID.String(),
				it.ItemName,
				it.Supplier,
				it.Quantity,
				it.CostPrice.InexactFloat64(),
				it.SalePrice.InexactFloat64(),
				it.LineTotal.InexactFloat64(),
			}
			if err := f.SetSheetRow(SalesSheet, cell, &values); err != nil {
				return fmt.Errorf("xlsx: row %d: %w", row, err)
			}
			row++
		}
	}
	return f.Write(w)
}
