package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"estoque/internal/model"
	"estoque/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

// stubItemRepo is an in-memory ItemRepository. The mutex makes the
// conditional decrement atomic, like the row-level UPDATE it stands in for.
type stubItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.Item
	order []uuid.UUID
}

func newStubItemRepo() *stubItemRepo {
	return &stubItemRepo{items: make(map[uuid.UUID]*model.Item)}
}

func (r *stubItemRepo) seed(name string, qty int, cost, price string) model.Item {
	it := model.Item{
		ID:        uuid.New(),
		Name:      name,
		Supplier:  "ACME",
		Quantity:  qty,
		CostPrice: decimal.RequireFromString(cost),
		SalePrice: decimal.RequireFromString(price),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_ = r.CreateTx(nil, &it)
	return it
}

func (r *stubItemRepo) get(id uuid.UUID) (model.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return model.Item{}, false
	}
	return *it, true
}

func (r *stubItemRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Item, error) {
	it, ok := r.get(id)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &it, nil
}

func (r *stubItemRepo) FindByName(_ context.Context, name string) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if strings.EqualFold(it.Name, name) {
			cp := *it
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubItemRepo) List(_ context.Context, search string) ([]model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Item
	for _, id := range r.order {
		if it, ok := r.items[id]; ok && matchesSearch(it, search) {
			out = append(out, *it)
		}
	}
	return out, nil
}

func matchesSearch(it *model.Item, search string) bool {
	if search == "" {
		return true
	}
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(it.Name), q) ||
		strings.Contains(strings.ToLower(it.Supplier), q) ||
		strconv.Itoa(it.Quantity) == search ||
		strings.HasPrefix(it.CostPrice.StringFixed(2), search) ||
		strings.HasPrefix(it.SalePrice.StringFixed(2), search)
}

func (r *stubItemRepo) ListLowStock(ctx context.Context, threshold int) ([]model.Item, error) {
	all, _ := r.List(ctx, "")
	var out []model.Item
	for _, it := range all {
		if it.Quantity <= threshold {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out, nil
}

func (r *stubItemRepo) CreateTx(_ *gorm.DB, it *model.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *it
	r.items[it.ID] = &cp
	r.order = append(r.order, it.ID)
	return nil
}

func (r *stubItemRepo) LockByIDsTx(_ *gorm.DB, ids []uuid.UUID) ([]model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Item
	for _, id := range ids {
		if it, ok := r.items[id]; ok {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (r *stubItemRepo) SaveTx(_ *gorm.DB, it *model.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *it
	r.items[it.ID] = &cp
	return nil
}

func (r *stubItemRepo) DecrementStockTx(_ *gorm.DB, id uuid.UUID, qty int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.Quantity < qty {
		return false, nil
	}
	it.Quantity -= qty
	return true, nil
}

func (r *stubItemRepo) DeleteTx(_ *gorm.DB, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return false, nil
	}
	delete(r.items, id)
	return true, nil
}

func (r *stubItemRepo) DB() *gorm.DB { return nil }

var _ repository.ItemRepository = (*stubItemRepo)(nil)

// stubMovementRepo captures stock movements for assertion.
type stubMovementRepo struct {
	mu        sync.Mutex
	movements []model.StockMovement
}

func (r *stubMovementRepo) CreateTx(_ *gorm.DB, m *model.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements = append(r.movements, *m)
	return nil
}

func (r *stubMovementRepo) ListByItem(_ context.Context, itemID uuid.UUID, _ int) ([]model.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.StockMovement
	for i := len(r.movements) - 1; i >= 0; i-- {
		if r.movements[i].ItemID == itemID {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

func (r *stubMovementRepo) HasOutflowTx(_ *gorm.DB, itemID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.movements {
		if m.ItemID == itemID && (m.Kind == model.MovementSale || m.Kind == model.MovementDelete) {
			return true, nil
		}
	}
	return false, nil
}

var _ repository.StockMovementRepository = (*stubMovementRepo)(nil)

// stubSaleRepo is an in-memory SaleRepository.
type stubSaleRepo struct {
	mu    sync.Mutex
	sales []model.Sale
}

func (r *stubSaleRepo) CreateTx(_ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales = append(r.sales, *s)
	return nil
}

func (r *stubSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sales {
		if r.sales[i].ID == id {
			s := r.sales[i]
			return &s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSaleRepo) List(ctx context.Context, f repository.SaleFilter) ([]model.Sale, int64, error) {
	all, _ := r.ListBetween(ctx, f.From, f.To)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *stubSaleRepo) ListBetween(_ context.Context, from, to time.Time) ([]model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := Window{From: from, To: to}
	var out []model.Sale
	for _, s := range r.sales {
		if w.Contains(s.CreatedAt) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubSaleRepo) DB() *gorm.DB { return nil }

func (r *stubSaleRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sales)
}

var _ repository.SaleRepository = (*stubSaleRepo)(nil)

// stubEnqueuer records receipt jobs.
type stubEnqueuer struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (e *stubEnqueuer) EnqueueReceipt(_ context.Context, id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	return e.err
}
