package repository

import (
	"context"
	"time"

	"estoque/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SaleFilter selects sales created in [From, To). Zero times are open bounds.
type SaleFilter struct {
	From  time.Time
	To    time.Time
	Page  int
	Limit int
}

type SaleRepository interface {
	CreateTx(tx *gorm.DB, s *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	List(ctx context.Context, filter SaleFilter) ([]model.Sale, int64, error)
	// ListBetween returns every sale in [from, to) with its lines, oldest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]model.Sale, error)
	DB() *gorm.DB
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) DB() *gorm.DB { return r.db }

// CreateTx inserts the sale and, through the association, its lines.
func (r *saleRepo) CreateTx(tx *gorm.DB, s *model.Sale) error {
	return tx.Create(s).Error
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).Preload("Items", orderByPosition).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *saleRepo) List(ctx context.Context, filter SaleFilter) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	base := r.db.WithContext(ctx).Model(&model.Sale{})
	if err := window(base.Session(&gorm.Session{}), filter.From, filter.To).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := window(base.Session(&gorm.Session{}), filter.From, filter.To).
		Preload("Items", orderByPosition).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&sales).Error
	return sales, total, err
}

func (r *saleRepo) ListBetween(ctx context.Context, from, to time.Time) ([]model.Sale, error) {
	var sales []model.Sale
	err := window(r.db.WithContext(ctx), from, to).
		Preload("Items", orderByPosition).
		Order("created_at ASC, id ASC").
		Find(&sales).Error
	return sales, err
}

func window(q *gorm.DB, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to)
	}
	return q
}

func orderByPosition(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }
