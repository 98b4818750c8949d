package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/pagination"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

type ProductListFilter struct {
	UserID uuid.UUID
	Name   string
	Limit  int
	After  *pagination.Cursor
	Desc   bool
}

type ProductRepo interface {
	Create(ctx context.Context, tx *gorm.DB, product *types.Product) (*types.Product, error)
	GetOwnedByID(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*types.Product, error)
	List(ctx context.Context, tx *gorm.DB, filter ProductListFilter) ([]*types.Product, error)
}

type productRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return &productRepo{
		db:  db,
		log: baseLog.With("repo", "ProductRepo"),
	}
}

func (r *productRepo) Create(ctx context.Context, tx *gorm.DB, product *types.Product) (*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func (r *productRepo) GetOwnedByID(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var product types.Product
	if err := transaction.WithContext(ctx).
		Preload("Portions").
		Where("id = ? AND user_id = ?", id, userID).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) List(ctx context.Context, tx *gorm.DB, filter ProductListFilter) ([]*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Model(&types.Product{}).
		Where("user_id = ?", filter.UserID)
	if filter.Name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Name)+"%")
	}
	if filter.After != nil {
		if filter.Desc {
			q = q.Where("(created_at, id) < (?, ?)", filter.After.SortValue, filter.After.ID)
		} else {
			q = q.Where("(created_at, id) > (?, ?)", filter.After.SortValue, filter.After.ID)
		}
	}
	if filter.Desc {
		q = q.Order("created_at DESC").Order("id DESC")
	} else {
		q = q.Order("created_at ASC").Order("id ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var products []*types.Product
	if err := q.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
