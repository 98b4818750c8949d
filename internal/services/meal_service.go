package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/domain"
	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/pagination"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

const (
	defaultMealPageSize = 20
	maxMealPageSize     = 100
)

type CreateMealInput struct {
	Name  string
	Notes string
	AteAt time.Time
}

type ListMealsInput struct {
	AteFrom   *time.Time
	AteTo     *time.Time
	PageSize  int
	PageAfter string
	Sort      string
}

type MealPage struct {
	Meals      []*types.Meal
	NextCursor string
}

type MealService interface {
	CreateMeal(ctx context.Context, userID uuid.UUID, input CreateMealInput) (*types.Meal, error)
	GetMeal(ctx context.Context, userID, mealID uuid.UUID) (*types.Meal, error)
	ListMeals(ctx context.Context, userID uuid.UUID, input ListMealsInput) (*MealPage, error)
	DeleteMeal(ctx context.Context, userID, mealID uuid.UUID) error
}

type mealService struct {
	db       *gorm.DB
	log      *logger.Logger
	mealRepo repos.MealRepo
}

func NewMealService(db *gorm.DB, log *logger.Logger, mealRepo repos.MealRepo) MealService {
	return &mealService{
		db:       db,
		log:      log.With("service", "MealService"),
		mealRepo: mealRepo,
	}
}

func (s *mealService) CreateMeal(ctx context.Context, userID uuid.UUID, input CreateMealInput) (*types.Meal, error) {
	const op = "MealService.CreateMeal"

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewError(domain.CodeInvalidInput, op, "name is required", nil)
	}
	ateAt := input.AteAt
	if ateAt.IsZero() {
		ateAt = time.Now()
	}

	meal := &types.Meal{
		ID:     uuid.New(),
		UserID: userID,
		Name:   name,
		Notes:  strings.TrimSpace(input.Notes),
		AteAt:  ateAt,
	}
	if _, err := s.mealRepo.Create(ctx, nil, meal); err != nil {
		return nil, domain.MapRepoError(op, err)
	}
	return meal, nil
}

func (s *mealService) GetMeal(ctx context.Context, userID, mealID uuid.UUID) (*types.Meal, error) {
	const op = "MealService.GetMeal"
	meal, err := s.mealRepo.GetOwnedByID(ctx, nil, userID, mealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.CodeNotFound, op, "meal not found", err)
		}
		return nil, domain.MapRepoError(op, err)
	}
	return meal, nil
}

func (s *mealService) ListMeals(ctx context.Context, userID uuid.UUID, input ListMealsInput) (*MealPage, error) {
	const op = "MealService.ListMeals"

	pageSize := input.PageSize
	if pageSize == 0 {
		pageSize = defaultMealPageSize
	}
	if pageSize < 1 || pageSize > maxMealPageSize {
		return nil, domain.NewError(domain.CodeInvalidInput, op,
			fmt.Sprintf("page_size must be between 1 and %d", maxMealPageSize), nil)
	}

	desc := true
	switch input.Sort {
	case "", "-created_at":
	case "created_at":
		desc = false
	default:
		return nil, domain.NewError(domain.CodeInvalidInput, op, "sort must be created_at or -created_at", nil)
	}

	var after *pagination.Cursor
	if input.PageAfter != "" {
		cursor, err := pagination.Decode(input.PageAfter)
		if err != nil {
			return nil, err
		}
		after = &cursor
	}

	meals, err := s.mealRepo.List(ctx, nil, repos.MealListFilter{
		UserID:  userID,
		AteFrom: input.AteFrom,
		AteTo:   input.AteTo,
		Limit:   pageSize + 1,
		After:   after,
		Desc:    desc,
	})
	if err != nil {
		return nil, domain.MapRepoError(op, err)
	}

	page := &MealPage{Meals: meals}
	if len(meals) > pageSize {
		page.Meals = meals[:pageSize]
		last := page.Meals[len(page.Meals)-1]
		page.NextCursor = pagination.Encode(last.CreatedAt, last.ID)
	}
	return page, nil
}

func (s *mealService) DeleteMeal(ctx context.Context, userID, mealID uuid.UUID) error {
	const op = "MealService.DeleteMeal"
	rows, err := s.mealRepo.SoftDelete(ctx, nil, userID, mealID)
	if err != nil {
		return domain.MapRepoError(op, err)
	}
	if rows == 0 {
		return domain.NewError(domain.CodeNotFound, op, "meal not found", nil)
	}
	return nil
}
