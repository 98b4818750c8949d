package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/types"
)

func seedMeal(userID uuid.UUID, name string, ateAt time.Time) *types.Meal {
	return &types.Meal{
		ID:     uuid.New(),
		UserID: userID,
		Name:   name,
		AteAt:  ateAt,
	}
}

func TestMealSoftDeleteHidesRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepo(db, newRepoTestLogger(t))
	ctx := context.Background()
	userID := uuid.New()

	meal := seedMeal(userID, "lunch", time.Now())
	if _, err := repo.Create(ctx, nil, meal); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows, err := repo.SoftDelete(ctx, nil, userID, meal.ID)
	if err != nil || rows != 1 {
		t.Fatalf("SoftDelete: rows=%d err=%v", rows, err)
	}

	_, err = repo.GetOwnedByID(ctx, nil, userID, meal.ID)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("deleted meal lookup: want record not found, got %v", err)
	}
	meals, err := repo.List(ctx, nil, MealListFilter{UserID: userID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(meals) != 0 {
		t.Fatalf("deleted meal leaked into listing: got=%d", len(meals))
	}

	// Deleting again reports nothing to delete.
	rows, err = repo.SoftDelete(ctx, nil, userID, meal.ID)
	if err != nil || rows != 0 {
		t.Fatalf("SoftDelete repeat: rows=%d err=%v", rows, err)
	}
}

func TestMealSoftDeleteEnforcesOwnership(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepo(db, newRepoTestLogger(t))
	ctx := context.Background()

	meal := seedMeal(uuid.New(), "dinner", time.Now())
	if _, err := repo.Create(ctx, nil, meal); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rows, err := repo.SoftDelete(ctx, nil, uuid.New(), meal.ID)
	if err != nil || rows != 0 {
		t.Fatalf("foreign delete: rows=%d err=%v", rows, err)
	}
}

func TestMealUpdateTotals(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepo(db, newRepoTestLogger(t))
	ctx := context.Background()
	userID := uuid.New()

	meal := seedMeal(userID, "breakfast", time.Now())
	if _, err := repo.Create(ctx, nil, meal); err != nil {
		t.Fatalf("Create: %v", err)
	}

	totals := MealTotals{
		Calories: decMust("340"),
		Protein:  decMust("19.2"),
		Fat:      decMust("14.5"),
		Carbs:    decMust("21"),
	}
	if err := repo.UpdateTotals(ctx, nil, meal.ID, totals); err != nil {
		t.Fatalf("UpdateTotals: %v", err)
	}

	got, err := repo.GetOwnedByID(ctx, nil, userID, meal.ID)
	if err != nil {
		t.Fatalf("GetOwnedByID: %v", err)
	}
	if !got.Calories.Equal(totals.Calories) || !got.Protein.Equal(totals.Protein) {
		t.Fatalf("totals round trip: calories=%s protein=%s", got.Calories, got.Protein)
	}
}

func TestMealListAteWindow(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepo(db, newRepoTestLogger(t))
	ctx := context.Background()
	userID := uuid.New()

	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	early := seedMeal(userID, "breakfast", base)
	late := seedMeal(userID, "dinner", base.Add(12*time.Hour))
	for _, meal := range []*types.Meal{early, late} {
		if _, err := repo.Create(ctx, nil, meal); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	from := base.Add(6 * time.Hour)
	meals, err := repo.List(ctx, nil, MealListFilter{UserID: userID, AteFrom: &from})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(meals) != 1 || meals[0].ID != late.ID {
		t.Fatalf("ate window: got=%d meals", len(meals))
	}

	to := base.Add(6 * time.Hour)
	meals, err = repo.List(ctx, nil, MealListFilter{UserID: userID, AteTo: &to})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(meals) != 1 || meals[0].ID != early.ID {
		t.Fatalf("ate window upper bound: got=%d meals", len(meals))
	}
}
