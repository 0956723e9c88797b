package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"estoque/internal/dto"
	"estoque/internal/infra"
	"estoque/internal/metrics"
	"estoque/internal/model"
	"estoque/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceiptEnqueuer schedules asynchronous receipt delivery for a sale.
type ReceiptEnqueuer interface {
	EnqueueReceipt(ctx context.Context, saleID uuid.UUID) error
}

// CartLine is one requested (item, quantity) pair. UnitPrice, when set, is
// the price the client displayed and must match the current sale price.
type CartLine struct {
	ItemID    uuid.UUID
	Quantity  int
	UnitPrice *decimal.Decimal
}

// Cart is the client-side sale under composition, submitted as a whole.
type Cart struct {
	BuyerRef      *string
	BuyerEmail    *string
	PaymentMethod model.PaymentMethod
	Lines         []CartLine
}

// FinalizedSale is the committed sale plus the items it depleted.
type FinalizedSale struct {
	Sale     *model.Sale
	Depleted []uuid.UUID
}

type SaleService interface {
	Finalize(ctx context.Context, req dto.CreateSaleRequest) (*dto.SaleResponse, error)
	FinalizeCart(ctx context.Context, cart Cart) (*FinalizedSale, error)
	List(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error)
	Summary(ctx context.Context, from, to string) (*dto.SalesSummaryResponse, error)
	Receipt(ctx context.Context, id uuid.UUID, w io.Writer) error
	Export(ctx context.Context, from, to string, w io.Writer) error
}

type saleService struct {
	repo      repository.SaleRepository
	items     repository.ItemRepository
	movements repository.StockMovementRepository
	receipts  ReceiptEnqueuer
	metrics   *metrics.Metrics
	header    infra.ReceiptHeader
	now       func() time.Time
}

func NewSaleService(
	repo repository.SaleRepository,
	items repository.ItemRepository,
	movements repository.StockMovementRepository,
	receipts ReceiptEnqueuer,
	m *metrics.Metrics,
	header infra.ReceiptHeader,
) SaleService {
	return &saleService{
		repo:      repo,
		items:     items,
		movements: movements,
		receipts:  receipts,
		metrics:   m,
		header:    header,
		now:       time.Now,
	}
}

// NewCart converts a request body, single-line or multi-line, into a Cart.
func NewCart(req dto.CreateSaleRequest) (Cart, error) {
	method, ok := model.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return Cart{}, invalid("paymentMethod", "paymentMethod must be one of cash, credit_card, debit_card, pix")
	}
	reqLines := req.Lines()
	if len(reqLines) == 0 {
		return Cart{}, invalid("items", "a sale needs at least one line")
	}
	cart := Cart{
		BuyerRef:      trimmed(req.Buyer()),
		BuyerEmail:    trimmed(req.BuyerEmail),
		PaymentMethod: method,
		Lines:         make([]CartLine, 0, len(reqLines)),
	}
	for i, l := range reqLines {
		id, err := uuid.Parse(l.ItemID)
		if err != nil {
			return Cart{}, invalid(fmt.Sprintf("items[%d].itemId", i), "itemId must be a valid UUID")
		}
		cart.Lines = append(cart.Lines, CartLine{ItemID: id, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return cart, nil
}

// normalize validates the cart shape and merges lines referring to the same
// item, keeping first-appearance order.
func (c Cart) normalize() ([]CartLine, error) {
	if _, ok := model.ParsePaymentMethod(string(c.PaymentMethod)); !ok {
		return nil, invalid("paymentMethod", "paymentMethod must be one of cash, credit_card, debit_card, pix")
	}
	if len(c.Lines) == 0 {
		return nil, invalid("items", "a sale needs at least one line")
	}
	merged := make([]CartLine, 0, len(c.Lines))
	pos := make(map[uuid.UUID]int, len(c.Lines))
	for i, l := range c.Lines {
		if l.ItemID == uuid.Nil {
			return nil, invalid(fmt.Sprintf("items[%d].itemId", i), "itemId is required")
		}
		if l.Quantity <= 0 {
			return nil, invalid(fmt.Sprintf("items[%d].quantity", i), "quantity must be greater than zero")
		}
		j, seen := pos[l.ItemID]
		if !seen {
			pos[l.ItemID] = len(merged)
			merged = append(merged, l)
			continue
		}
		if l.UnitPrice != nil {
			if merged[j].UnitPrice != nil && !merged[j].UnitPrice.Equal(*l.UnitPrice) {
				return nil, invalid(fmt.Sprintf("items[%d].unitPrice", i), "conflicting unit prices for the same item")
			}
			merged[j].UnitPrice = l.UnitPrice
		}
		merged[j].Quantity += l.Quantity
	}
	return merged, nil
}

func (s *saleService) Finalize(ctx context.Context, req dto.CreateSaleRequest) (*dto.SaleResponse, error) {
	cart, err := NewCart(req)
	if err != nil {
		return nil, err
	}
	res, err := s.FinalizeCart(ctx, cart)
	if err != nil {
		return nil, err
	}
	resp := saleToResponse(res.Sale)
	for _, id := range res.Depleted {
		resp.DepletedItemIDs = append(resp.DepletedItemIDs, id.String())
	}
	return resp, nil
}

// FinalizeCart validates the cart against a locked snapshot of the referenced
// items, decrements stock and persists the sale in one transaction. Nothing is
// written unless every line passes.
func (s *saleService) FinalizeCart(ctx context.Context, cart Cart) (*FinalizedSale, error) {
	lines, err := cart.normalize()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var (
		sale     *model.Sale
		depleted []uuid.UUID
	)
	err = runTx(ctx, s.items.DB(), func(tx *gorm.DB) error {
		if err := ctx.Err(); err != nil {
			return storageErr("finalize sale", err, "")
		}
		locked, err := s.items.LockByIDsTx(tx, ids)
		if err != nil {
			return storageErr("lock items", err, "")
		}
		snapshot := make(map[uuid.UUID]model.Item, len(locked))
		for _, it := range locked {
			snapshot[it.ID] = it
		}

		for i, l := range lines {
			it, ok := snapshot[l.ItemID]
			if !ok {
				return s.missingItem(tx, l)
			}
			if l.Quantity > it.Quantity {
				return &InsufficientStockError{ItemID: it.ID, ItemName: it.Name, Requested: l.Quantity, Available: it.Quantity}
			}
			if l.UnitPrice != nil && !l.UnitPrice.Round(2).Equal(it.SalePrice) {
				return &ValidationError{
					Msg:    fmt.Sprintf("price of %q changed to %s", it.Name, it.SalePrice.StringFixed(2)),
					Fields: map[string]string{fmt.Sprintf("items[%d].unitPrice", i): "stale price"},
				}
			}
		}

		sale = buildSale(cart, lines, snapshot, s.now().UTC())

		for _, id := range ids {
			it := snapshot[id]
			qty := quantityOf(lines, id)
			ok, err := s.items.DecrementStockTx(tx, id, qty)
			if err != nil {
				return storageErr("decrement stock", err, "")
			}
			if !ok {
				return &InsufficientStockError{ItemID: id, ItemName: it.Name, Requested: qty, Available: it.Quantity}
			}
			if it.Quantity-qty == 0 {
				if _, err := s.items.DeleteTx(tx, id); err != nil {
					return storageErr("delete depleted item", err, "")
				}
				depleted = append(depleted, id)
			}
		}

		if err := s.repo.CreateTx(tx, sale); err != nil {
			return storageErr("create sale", err, "")
		}

		for _, line := range sale.Items {
			before := snapshot[line.ItemID].Quantity
			mov := &model.StockMovement{
				ID:             uuid.New(),
				ItemID:         line.ItemID,
				Kind:           model.MovementSale,
				Delta:          -line.Quantity,
				QuantityBefore: before,
				QuantityAfter:  before - line.Quantity,
				Reason:         "sale " + sale.ID.String(),
				SaleID:         &sale.ID,
				CreatedAt:      sale.CreatedAt,
			}
			if err := s.movements.CreateTx(tx, mov); err != nil {
				return storageErr("record stock movement", err, "")
			}
		}
		return nil
	})
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			s.metrics.StockRejected()
			log.Warn().
				Str("item_id", stockErr.ItemID.String()).
				Int("requested", stockErr.Requested).
				Int("available", stockErr.Available).
				Msg("sale rejected: insufficient stock")
		}
		return nil, err
	}

	s.metrics.SaleFinalized(string(sale.PaymentMethod), sale.TotalValue)
	s.metrics.ItemsDepleted(len(depleted))
	log.Info().
		Str("sale_id", sale.ID.String()).
		Str("payment_method", string(sale.PaymentMethod)).
		Int("lines", len(sale.Items)).
		Str("total", sale.TotalValue.StringFixed(2)).
		Int("depleted", len(depleted)).
		Msg("sale finalized")

	// Best effort: a queue outage never fails a committed sale.
	if s.receipts != nil {
		if err := s.receipts.EnqueueReceipt(ctx, sale.ID); err != nil {
			log.Warn().Err(err).Str("sale_id", sale.ID.String()).Msg("receipt job not enqueued")
		}
	}
	return &FinalizedSale{Sale: sale, Depleted: depleted}, nil
}

// buildSale prices every line from the snapshot and derives the totals.
func buildSale(cart Cart, lines []CartLine, snapshot map[uuid.UUID]model.Item, now time.Time) *model.Sale {
	sale := &model.Sale{
		ID:            uuid.New(),
		BuyerRef:      cart.BuyerRef,
		BuyerEmail:    cart.BuyerEmail,
		PaymentMethod: cart.PaymentMethod,
		TotalValue:    decimal.Zero,
		TotalCost:     decimal.Zero,
		CreatedAt:     now,
	}
	if m, ok := model.ParsePaymentMethod(string(cart.PaymentMethod)); ok {
		sale.PaymentMethod = m
	}
	for i, l := range lines {
		it := snapshot[l.ItemID]
		qty := decimal.NewFromInt(int64(l.Quantity))
		lineTotal := it.SalePrice.Mul(qty).Round(2)
		sale.Items = append(sale.Items, model.SaleItem{
			ID:        uuid.New(),
			SaleID:    sale.ID,
			Position:  i + 1,
			ItemID:    it.ID,
			ItemName:  it.Name,
			Supplier:  it.Supplier,
			Quantity:  l.Quantity,
			CostPrice: it.CostPrice,
			SalePrice: it.SalePrice,
			LineTotal: lineTotal,
		})
		sale.TotalQuantity += l.Quantity
		sale.TotalValue = sale.TotalValue.Add(lineTotal)
		sale.TotalCost = sale.TotalCost.Add(it.CostPrice.Mul(qty))
	}
	sale.TotalValue = sale.TotalValue.Round(2)
	sale.TotalCost = sale.TotalCost.Round(2)
	return sale
}

// missingItem separates an item that sold out or was removed, possibly by a
// sale that committed while this one waited on the row lock, from an id that
// never existed.
func (s *saleService) missingItem(tx *gorm.DB, l CartLine) error {
	gone, err := s.movements.HasOutflowTx(tx, l.ItemID)
	if err != nil {
		return storageErr("check stock movements", err, "")
	}
	if gone {
		return &InsufficientStockError{ItemID: l.ItemID, ItemName: l.ItemID.String(), Requested: l.Quantity, Available: 0}
	}
	return &NotFoundError{Resource: "item", ID: l.ItemID.String()}
}

func quantityOf(lines []CartLine, id uuid.UUID) int {
	for _, l := range lines {
		if l.ItemID == id {
			return l.Quantity
		}
	}
	return 0
}

func (s *saleService) List(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	w, err := parseBounds(filter.From, filter.To, s.now().Location())
	if err != nil {
		return nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	sales, total, err := s.repo.List(ctx, repository.SaleFilter{From: w.From, To: w.To, Page: filter.Page, Limit: filter.Limit})
	if err != nil {
		return nil, storageErr("list sales", err, "")
	}
	resp := &dto.SaleListResponse{Data: make([]dto.SaleResponse, 0, len(sales)), Total: total, Page: filter.Page, Limit: filter.Limit}
	for i := range sales {
		resp.Data = append(resp.Data, *saleToResponse(&sales[i]))
	}
	return resp, nil
}

func (s *saleService) Get(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return saleToResponse(sale), nil
}

func (s *saleService) Summary(ctx context.Context, from, to string) (*dto.SalesSummaryResponse, error) {
	w, err := ParseWindow(from, to, s.now())
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListBetween(ctx, w.From, w.To)
	if err != nil {
		return nil, storageErr("list sales", err, "")
	}
	resp := SummarizeSales(sales)
	resp.From, resp.To = w.label()
	return resp, nil
}

// Receipt renders the thermal-style PDF receipt of a sale into w.
func (s *saleService) Receipt(ctx context.Context, id uuid.UUID, w io.Writer) error {
	sale, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := infra.RenderReceiptPDF(w, sale, s.header); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	return nil
}

// Export writes the sales of the window as an XLSX workbook into w.
func (s *saleService) Export(ctx context.Context, from, to string, w io.Writer) error {
	win, err := ParseWindow(from, to, s.now())
	if err != nil {
		return err
	}
	sales, err := s.repo.ListBetween(ctx, win.From, win.To)
	if err != nil {
		return storageErr("list sales", err, "")
	}
	if err := infra.WriteSalesXLSX(w, sales); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func (s *saleService) find(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	sale, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "sale", ID: id.String()}
	}
	if err != nil {
		return nil, storageErr("find sale", err, "")
	}
	return sale, nil
}

// SummarizeSales totals a set of sales overall and per payment method. Every
// method appears in the breakdown, zero or not.
func SummarizeSales(sales []model.Sale) *dto.SalesSummaryResponse {
	resp := &dto.SalesSummaryResponse{
		TotalValue:  decimal.Zero,
		TotalCost:   decimal.Zero,
		GrossProfit: decimal.Zero,
	}
	byMethod := make(map[model.PaymentMethod]*dto.PaymentMethodTotal, len(model.PaymentMethods))
	for _, m := range model.PaymentMethods {
		resp.ByPayment = append(resp.ByPayment, dto.PaymentMethodTotal{PaymentMethod: string(m), Value: decimal.Zero})
	}
	for i, m := range model.PaymentMethods {
		byMethod[m] = &resp.ByPayment[i]
	}

	for _, sale := range sales {
		resp.Sales++
		resp.TotalQuantity += sale.TotalQuantity
		resp.TotalValue = resp.TotalValue.Add(sale.TotalValue)
		resp.TotalCost = resp.TotalCost.Add(sale.TotalCost)
		if t, ok := byMethod[sale.PaymentMethod]; ok {
			t.Sales++
			t.Value = t.Value.Add(sale.TotalValue)
		}
	}
	resp.GrossProfit = resp.TotalValue.Sub(resp.TotalCost)
	return resp
}

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	resp := &dto.SaleResponse{
		ID:            s.ID.String(),
		BuyerRef:      s.BuyerRef,
		PaymentMethod: string(s.PaymentMethod),
		TotalQuantity: s.TotalQuantity,
		TotalValue:    s.TotalValue,
		TotalCost:     s.TotalCost,
		Items:         make([]dto.SaleItemResponse, 0, len(s.Items)),
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range s.Items {
		resp.Items = append(resp.Items, dto.SaleItemResponse{
			ItemID:    it.ItemID.String(),
			ItemName:  it.ItemName,
			Supplier:  it.Supplier,
			Quantity:  it.Quantity,
			CostPrice: it.CostPrice,
			SalePrice: it.SalePrice,
			LineTotal: it.LineTotal,
		})
	}
	return resp
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
