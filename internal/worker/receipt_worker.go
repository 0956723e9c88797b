package worker

// Delivers PDF receipts to buyers that left an e-mail address.

import (
	"context"
	"encoding/json"
	"fmt"

	"estoque/internal/infra"
	"estoque/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SaleFinder loads a sale with its lines.
type SaleFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
}

// ReceiptMailer is the slice of infra.Mailer the worker needs.
type ReceiptMailer interface {
	Enabled() bool
	SendReceipt(to, subject, body, pdfPath string) error
}

// ReceiptWorker renders the receipt PDF to disk and e-mails it.
type ReceiptWorker struct {
	sales  SaleFinder
	mailer ReceiptMailer
	dir    string
	header infra.ReceiptHeader
}

func NewReceiptWorker(sales SaleFinder, mailer ReceiptMailer, dir string, header infra.ReceiptHeader) *ReceiptWorker {
	return &ReceiptWorker{sales: sales, mailer: mailer, dir: dir, header: header}
}

// Process handles one receipt job. Sales without a buyer e-mail are done
// immediately.
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload ReceiptPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("receipt_worker: invalid payload: %w", err)
	}
	id, err := uuid.Parse(payload.SaleID)
	if err != nil {
		return fmt.Errorf("receipt_worker: invalid sale id %q: %w", payload.SaleID, err)
	}

	sale, err := w.sales.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("receipt_worker: load sale %s: %w", id, err)
	}
	if sale.BuyerEmail == nil || *sale.BuyerEmail == "" {
		log.Debug().Str("sale_id", id.String()).Msg("receipt_worker: no buyer e-mail, skipping")
		return nil
	}

	path, err := infra.SaveReceiptPDF(sale, w.dir, w.header)
	if err != nil {
		return fmt.Errorf("receipt_worker: render pdf: %w", err)
	}
	if !w.mailer.Enabled() {
		log.Info().Str("sale_id", id.String()).Str("path", path).Msg("receipt_worker: mailer disabled, receipt stored only")
		return nil
	}

	subject := fmt.Sprintf("%s - comprovante de compra", w.header.ShopName)
	body := fmt.Sprintf("Obrigado pela compra!\n\nTotal: %s\nPagamento: %s\n\nO comprovante segue em anexo.",
		infra.FormatBRL(sale.TotalValue), sale.PaymentMethod.Label())
	if err := w.mailer.SendReceipt(*sale.BuyerEmail, subject, body, path); err != nil {
		return fmt.Errorf("receipt_worker: send: %w", err)
	}
	log.Info().Str("sale_id", id.String()).Str("to", *sale.BuyerEmail).Msg("receipt_worker: receipt sent")
	return nil
}
