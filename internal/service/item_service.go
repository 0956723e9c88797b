package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"estoque/internal/dto"
	"estoque/internal/model"
	"estoque/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type ItemService interface {
	Create(ctx context.Context, req dto.CreateItemRequest) (*dto.ItemResponse, error)
	List(ctx context.Context, filter dto.ItemFilter) ([]dto.ItemResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.ItemResponse, error)
	Update(ctx context.Context, id uuid.UUID, req dto.UpdateItemRequest) (*dto.UpdateItemResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Movements(ctx context.Context, id uuid.UUID, limit int) ([]dto.StockMovementResponse, error)
	LowStock(ctx context.Context) ([]dto.ItemResponse, error)
}

type itemService struct {
	repo      repository.ItemRepository
	movements repository.StockMovementRepository
	lowStock  int
	now       func() time.Time
}

func NewItemService(repo repository.ItemRepository, movements repository.StockMovementRepository, lowStockThreshold int) ItemService {
	return &itemService{repo: repo, movements: movements, lowStock: lowStockThreshold, now: time.Now}
}

func (s *itemService) Create(ctx context.Context, req dto.CreateItemRequest) (*dto.ItemResponse, error) {
	name := strings.TrimSpace(req.Name)
	supplier := strings.TrimSpace(req.Supplier)
	switch {
	case name == "":
		return nil, invalid("name", "name is required")
	case supplier == "":
		return nil, invalid("supplier", "supplier is required")
	case req.Quantity <= 0:
		return nil, invalid("quantity", "quantity must be greater than zero")
	case !req.CostPrice.IsPositive():
		return nil, invalid("costPrice", "costPrice must be greater than zero")
	case !req.SalePrice.IsPositive():
		return nil, invalid("salePrice", "salePrice must be greater than zero")
	}

	if err := s.ensureUniqueName(ctx, name, uuid.Nil); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := &model.Item{
		ID:        uuid.New(),
		Name:      name,
		Supplier:  supplier,
		Quantity:  req.Quantity,
		CostPrice: req.CostPrice.Round(2),
		SalePrice: req.SalePrice.Round(2),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, item); err != nil {
			return storageErr("create item", err, name)
		}
		return s.record(tx, item.ID, model.MovementCreate, 0, item.Quantity, "initial stock", nil)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("item_id", item.ID.String()).Str("name", item.Name).Int("quantity", item.Quantity).Msg("item created")
	return itemToResponse(item), nil
}

func (s *itemService) List(ctx context.Context, filter dto.ItemFilter) ([]dto.ItemResponse, error) {
	items, err := s.repo.List(ctx, strings.TrimSpace(filter.Search))
	if err != nil {
		return nil, storageErr("list items", err, "")
	}
	resp := make([]dto.ItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, *itemToResponse(&items[i]))
	}
	return resp, nil
}

func (s *itemService) Get(ctx context.Context, id uuid.UUID) (*dto.ItemResponse, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, itemLookupErr(err, id)
	}
	return itemToResponse(item), nil
}

// Update applies a partial update under a row lock. Setting the quantity to
// zero deletes the item.
func (s *itemService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateItemRequest) (*dto.UpdateItemResponse, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, invalid("name", "name must not be blank")
	}
	if req.Supplier != nil && strings.TrimSpace(*req.Supplier) == "" {
		return nil, invalid("supplier", "supplier must not be blank")
	}
	if req.Quantity != nil && *req.Quantity < 0 {
		return nil, invalid("quantity", "quantity must not be negative")
	}
	if req.CostPrice != nil && !req.CostPrice.IsPositive() {
		return nil, invalid("costPrice", "costPrice must be greater than zero")
	}
	if req.SalePrice != nil && !req.SalePrice.IsPositive() {
		return nil, invalid("salePrice", "salePrice must be greater than zero")
	}
	if req.Name != nil {
		if err := s.ensureUniqueName(ctx, strings.TrimSpace(*req.Name), id); err != nil {
			return nil, err
		}
	}

	var (
		updated model.Item
		deleted bool
	)
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		locked, err := s.repo.LockByIDsTx(tx, []uuid.UUID{id})
		if err != nil {
			return storageErr("lock item", err, "")
		}
		if len(locked) == 0 {
			return &NotFoundError{Resource: "item", ID: id.String()}
		}
		item := locked[0]
		before := item.Quantity

		if req.Name != nil {
			item.Name = strings.TrimSpace(*req.Name)
		}
		if req.Supplier != nil {
			item.Supplier = strings.TrimSpace(*req.Supplier)
		}
		if req.CostPrice != nil {
			item.CostPrice = req.CostPrice.Round(2)
		}
		if req.SalePrice != nil {
			item.SalePrice = req.SalePrice.Round(2)
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}

		if item.Quantity == 0 {
			if _, err := s.repo.DeleteTx(tx, id); err != nil {
				return storageErr("delete item", err, "")
			}
			deleted = true
			return s.record(tx, id, model.MovementDelete, before, 0, "quantity set to zero", nil)
		}

		item.UpdatedAt = s.now().UTC()
		if err := s.repo.SaveTx(tx, &item); err != nil {
			return storageErr("update item", err, item.Name)
		}
		updated = item
		if item.Quantity != before {
			return s.record(tx, id, model.MovementAdjust, before, item.Quantity, "manual adjustment", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if deleted {
		log.Info().Str("item_id", id.String()).Msg("item deleted: quantity set to zero")
		return &dto.UpdateItemResponse{Deleted: true, Message: "item removed because its quantity reached zero"}, nil
	}
	return &dto.UpdateItemResponse{Item: itemToResponse(&updated)}, nil
}

func (s *itemService) Delete(ctx context.Context, id uuid.UUID) error {
	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		locked, err := s.repo.LockByIDsTx(tx, []uuid.UUID{id})
		if err != nil {
			return storageErr("lock item", err, "")
		}
		if len(locked) == 0 {
			return &NotFoundError{Resource: "item", ID: id.String()}
		}
		ok, err := s.repo.DeleteTx(tx, id)
		if err != nil {
			return storageErr("delete item", err, "")
		}
		if !ok {
			return &NotFoundError{Resource: "item", ID: id.String()}
		}
		return s.record(tx, id, model.MovementDelete, locked[0].Quantity, 0, "deleted", nil)
	})
}

func (s *itemService) Movements(ctx context.Context, id uuid.UUID, limit int) ([]dto.StockMovementResponse, error) {
	movements, err := s.movements.ListByItem(ctx, id, limit)
	if err != nil {
		return nil, storageErr("list movements", err, "")
	}
	resp := make([]dto.StockMovementResponse, 0, len(movements))
	for _, m := range movements {
		resp = append(resp, movementToResponse(m))
	}
	return resp, nil
}

func (s *itemService) LowStock(ctx context.Context) ([]dto.ItemResponse, error) {
	items, err := s.repo.ListLowStock(ctx, s.lowStock)
	if err != nil {
		return nil, storageErr("list low stock", err, "")
	}
	resp := make([]dto.ItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, *itemToResponse(&items[i]))
	}
	return resp, nil
}

// ensureUniqueName rejects a name already used by an item other than self.
func (s *itemService) ensureUniqueName(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.repo.FindByName(ctx, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return storageErr("find item by name", err, name)
	}
	if existing.ID != self {
		return &DuplicateItemError{Name: name}
	}
	return nil
}

func (s *itemService) record(tx *gorm.DB, itemID uuid.UUID, kind string, before, after int, reason string, saleID *uuid.UUID) error {
	m := &model.StockMovement{
		ID:             uuid.New(),
		ItemID:         itemID,
		Kind:           kind,
		Delta:          after - before,
		QuantityBefore: before,
		QuantityAfter:  after,
		Reason:         reason,
		SaleID:         saleID,
		CreatedAt:      s.now().UTC(),
	}
	return storageErr("record stock movement", s.movements.CreateTx(tx, m), "")
}

func itemLookupErr(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Resource: "item", ID: id.String()}
	}
	return storageErr("find item", err, "")
}

func itemToResponse(it *model.Item) *dto.ItemResponse {
	return &dto.ItemResponse{
		ID:        it.ID.String(),
		Name:      it.Name,
		Supplier:  it.Supplier,
		Quantity:  it.Quantity,
		CostPrice: it.CostPrice,
		SalePrice: it.SalePrice,
		CreatedAt: it.CreatedAt.Format(time.RFC3339),
		UpdatedAt: it.UpdatedAt.Format(time.RFC3339),
	}
}

func movementToResponse(m model.StockMovement) dto.StockMovementResponse {
	r := dto.StockMovementResponse{
		ID:             m.ID.String(),
		ItemID:         m.ItemID.String(),
		Kind:           m.Kind,
		Delta:          m.Delta,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		Reason:         m.Reason,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
	if m.SaleID != nil {
		id := m.SaleID.String()
		r.SaleID = &id
	}
	return r
}
