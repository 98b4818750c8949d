package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/pagination"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

type MealListFilter struct {
	UserID  uuid.UUID
	AteFrom *time.Time
	AteTo   *time.Time
	Limit   int
	After   *pagination.Cursor
	Desc    bool
}

// MealTotals is the denormalized nutrition written back after a successful
// analysis run.
type MealTotals struct {
	Calories decimal.Decimal
	Protein  decimal.Decimal
	Fat      decimal.Decimal
	Carbs    decimal.Decimal
}

type MealRepo interface {
	Create(ctx context.Context, tx *gorm.DB, meal *types.Meal) (*types.Meal, error)
	GetOwnedByID(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*types.Meal, error)
	List(ctx context.Context, tx *gorm.DB, filter MealListFilter) ([]*types.Meal, error)
	SoftDelete(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (int64, error)
	UpdateTotals(ctx context.Context, tx *gorm.DB, id uuid.UUID, totals MealTotals) error
}

type mealRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMealRepo(db *gorm.DB, baseLog *logger.Logger) MealRepo {
	return &mealRepo{
		db:  db,
		log: baseLog.With("repo", "MealRepo"),
	}
}

func (r *mealRepo) Create(ctx context.Context, tx *gorm.DB, meal *types.Meal) (*types.Meal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(meal).Error; err != nil {
		return nil, err
	}
	return meal, nil
}

func (r *mealRepo) GetOwnedByID(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*types.Meal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var meal types.Meal
	if err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&meal).Error; err != nil {
		return nil, err
	}
	return &meal, nil
}

func (r *mealRepo) List(ctx context.Context, tx *gorm.DB, filter MealListFilter) ([]*types.Meal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Model(&types.Meal{}).
		Where("user_id = ?", filter.UserID)
	if filter.AteFrom != nil {
		q = q.Where("ate_at >= ?", *filter.AteFrom)
	}
	if filter.AteTo != nil {
		q = q.Where("ate_at <= ?", *filter.AteTo)
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

	var meals []*types.Meal
	if err := q.Find(&meals).Error; err != nil {
		return nil, err
	}
	return meals, nil
}

func (r *mealRepo) SoftDelete(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&types.Meal{})
	return res.RowsAffected, res.Error
}

func (r *mealRepo) UpdateTotals(ctx context.Context, tx *gorm.DB, id uuid.UUID, totals MealTotals) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Meal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"calories":   totals.Calories,
			"protein":    totals.Protein,
			"fat":        totals.Fat,
			"carbs":      totals.Carbs,
			"updated_at": time.Now(),
		}).Error
}
