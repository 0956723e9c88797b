package infra

// pdf.go: receipt rendering with go-pdf/fpdf.
// The layout mimics a 55mm thermal printer roll:
//   - shop name and header lines
//   - date/time and sale id
//   - numbered lines "n name qtyUN unit total"
//   - payment method and bold total

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"estoque/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

const (
	receiptWidthMM  = 55.0
	receiptMarginMM = 3.0
)

// ReceiptHeader is the shop identity printed on top of every receipt.
type ReceiptHeader struct {
	ShopName string
	Lines    []string
}

// RenderReceiptPDF writes the receipt for sale to w.
func RenderReceiptPDF(w io.Writer, sale *model.Sale, header ReceiptHeader) error {
	// Height grows with the number of lines so nothing spills onto a second page.
	height := 70.0 + float64(len(header.Lines))*4 + float64(len(sale.Items))*5
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: receiptWidthMM, Ht: height},
	})
	pdf.SetMargins(receiptMarginMM, receiptMarginMM, receiptMarginMM)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	contentW := receiptWidthMM - 2*receiptMarginMM
	separator := func() {
		pdf.Ln(1)
		pdf.Line(receiptMarginMM, pdf.GetY(), receiptWidthMM-receiptMarginMM, pdf.GetY())
		pdf.Ln(1)
	}

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(contentW, 5, tr(header.ShopName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 6)
	for _, l := range header.Lines {
		pdf.CellFormat(contentW, 4, tr(l), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(contentW, 4, sale.CreatedAt.In(time.Local).Format("02/01/2006 15:04:05"), "", 1, "L", false, 0, "")
	separator()
	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(contentW, 4, "COMPROVANTE DE PAGAMENTO", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 5)
	pdf.CellFormat(contentW, 3, sale.ID.String(), "", 1, "C", false, 0, "")
	separator()

	// ── Lines ────────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "", 6)
	for i, it := range sale.Items {
		name := it.ItemName
		if r := []rune(name); len(r) > 18 {
			name = string(r[:17]) + "."
		}
		left := fmt.Sprintf("%d %s %dUN %s", i+1, name, it.Quantity, FormatBRL(it.SalePrice))
		pdf.CellFormat(contentW*0.7, 5, tr(left), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.3, 5, FormatBRL(it.LineTotal), "", 1, "R", false, 0, "")
	}
	separator()

	// ── Totals ───────────────────────────────────────────────────────────────
	pdf.CellFormat(contentW, 4, tr("Método de Pagamento: "+sale.PaymentMethod.Label()), "", 1, "L", false, 0, "")
	if sale.BuyerRef != nil && *sale.BuyerRef != "" {
		pdf.CellFormat(contentW, 4, tr("Cliente: "+*sale.BuyerRef), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW*0.5, 6, "Total Pago:", "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW*0.5, 6, FormatBRL(sale.TotalValue), "", 1, "R", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "I", 6)
	pdf.CellFormat(contentW, 4, tr("Obrigado pela preferência!"), "", 1, "C", false, 0, "")

	return pdf.Output(w)
}

// SaveReceiptPDF renders the receipt into dir/receipt_<sale id>.pdf and
// returns the file path.
func SaveReceiptPDF(sale *model.Sale, dir string, header ReceiptHeader) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("receipt_%s.pdf", sale.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("pdf: create file: %w", err)
	}
	if err := RenderReceiptPDF(f, sale, header); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("pdf: render: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return path, nil
}

// FormatBRL renders an amount as "R$ 1234,50". Thousands grouping is left to
// the UI.
func FormatBRL(d decimal.Decimal) string {
	return "R$ " + strings.Replace(d.StringFixed(2), ".", ",", 1)
}
