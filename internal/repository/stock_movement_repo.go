package repository

import (
	"context"

	"estoque/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StockMovementRepository interface {
	CreateTx(tx *gorm.DB, m *model.StockMovement) error
	// ListByItem returns the newest movements first.
	ListByItem(ctx context.Context, itemID uuid.UUID, limit int) ([]model.StockMovement, error)
	// HasOutflowTx reports whether the item ever left stock through a sale
	// or a deletion.
	HasOutflowTx(tx *gorm.DB, itemID uuid.UUID) (bool, error)
}

type stockMovementRepo struct{ db *gorm.DB }

func NewStockMovementRepository(db *gorm.DB) StockMovementRepository {
	return &stockMovementRepo{db: db}
}

func (r *stockMovementRepo) CreateTx(tx *gorm.DB, m *model.StockMovement) error {
	return tx.Create(m).Error
}

func (r *stockMovementRepo) ListByItem(ctx context.Context, itemID uuid.UUID, limit int) ([]model.StockMovement, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	var movements []model.StockMovement
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Limit(limit).
		Find(&movements).Error
	return movements, err
}

func (r *stockMovementRepo) HasOutflowTx(tx *gorm.DB, itemID uuid.UUID) (bool, error) {
	var n int64
	err := tx.Model(&model.StockMovement{}).
		Where("item_id = ? AND kind IN ?", itemID, []string{model.MovementSale, model.MovementDelete}).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}
