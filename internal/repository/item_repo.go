package repository

import (
	"context"
	"strings"
	"time"

	"estoque/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository defines the data access contract for inventory items.
// Services depend on this interface, not on the GORM implementation, so unit
// tests can swap in an in-memory stub.
type ItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Item, error)
	// FindByName matches case-insensitively.
	FindByName(ctx context.Context, name string) (*model.Item, error)
	// List returns every item when search is empty.
	List(ctx context.Context, search string) ([]model.Item, error)
	ListLowStock(ctx context.Context, threshold int) ([]model.Item, error)

	// Used inside transactions. Callers must pass the tx instance.
	CreateTx(tx *gorm.DB, it *model.Item) error
	// LockByIDsTx loads the rows FOR UPDATE in id order. Missing ids are
	// simply absent from the result.
	LockByIDsTx(tx *gorm.DB, ids []uuid.UUID) ([]model.Item, error)
	SaveTx(tx *gorm.DB, it *model.Item) error
	// DecrementStockTx subtracts qty only if at least qty is on hand and
	// reports whether the row was updated.
	DecrementStockTx(tx *gorm.DB, id uuid.UUID, qty int) (bool, error)
	DeleteTx(tx *gorm.DB, id uuid.UUID) (bool, error)

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type itemRepo struct{ db *gorm.DB }

func NewItemRepository(db *gorm.DB) ItemRepository { return &itemRepo{db: db} }

func (r *itemRepo) DB() *gorm.DB { return r.db }

func (r *itemRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	var it model.Item
	err := r.db.WithContext(ctx).First(&it, "id = ?", id).Error
	return &it, err
}

func (r *itemRepo) FindByName(ctx context.Context, name string) (*model.Item, error) {
	var it model.Item
	err := r.db.WithContext(ctx).Where("lower(name) = lower(?)", name).First(&it).Error
	return &it, err
}

func (r *itemRepo) List(ctx context.Context, search string) ([]model.Item, error) {
	var items []model.Item
	q := r.db.WithContext(ctx)
	if search != "" {
		like := likeEscaper.Replace(search)
		q = q.Where(
			"name ILIKE ? OR supplier ILIKE ? OR CAST(quantity AS TEXT) = ? OR CAST(cost_price AS TEXT) LIKE ? OR CAST(sale_price AS TEXT) LIKE ?",
			"%"+like+"%", "%"+like+"%", search, like+"%", like+"%",
		)
	}
	err := q.Order("created_at ASC, id ASC").Find(&items).Error
	return items, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *itemRepo) ListLowStock(ctx context.Context, threshold int) ([]model.Item, error) {
	var items []model.Item
	err := r.db.WithContext(ctx).
		Where("quantity <= ?", threshold).
		Order("quantity ASC, name ASC").
		Find(&items).Error
	return items, err
}

func (r *itemRepo) CreateTx(tx *gorm.DB, it *model.Item) error {
	return tx.Create(it).Error
}

func (r *itemRepo) LockByIDsTx(tx *gorm.DB, ids []uuid.UUID) ([]model.Item, error) {
	var items []model.Item
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *itemRepo) SaveTx(tx *gorm.DB, it *model.Item) error {
	return tx.Save(it).Error
}

func (r *itemRepo) DecrementStockTx(tx *gorm.DB, id uuid.UUID, qty int) (bool, error) {
	res := tx.Model(&model.Item{}).
		Where("id = ? AND quantity >= ?", id, qty).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *itemRepo) DeleteTx(tx *gorm.DB, id uuid.UUID) (bool, error) {
	res := tx.Where("id = ?", id).Delete(&model.Item{})
	return res.RowsAffected == 1, res.Error
}
