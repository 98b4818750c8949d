package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nutrilog/nutrilog-backend/internal/types"
)

func seedProduct(userID uuid.UUID, name string) *types.Product {
	return &types.Product{
		ID:              uuid.New(),
		UserID:          userID,
		Name:            name,
		CaloriesPer100g: decMust("165"),
		ProteinPer100g:  decMust("31"),
		FatPer100g:      decMust("3.6"),
		CarbsPer100g:    decMust("0"),
	}
}

func TestProductPortionsLoadWithProduct(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db, newRepoTestLogger(t))
	ctx := context.Background()
	userID := uuid.New()

	product := seedProduct(userID, "chicken breast")
	product.Portions = []types.ProductPortion{
		{ID: uuid.New(), ProductID: product.ID, Name: "fillet", WeightGrams: decMust("120")},
		{ID: uuid.New(), ProductID: product.ID, Name: "half fillet", WeightGrams: decMust("60")},
	}
	if _, err := repo.Create(ctx, nil, product); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetOwnedByID(ctx, nil, userID, product.ID)
	if err != nil {
		t.Fatalf("GetOwnedByID: %v", err)
	}
	if len(got.Portions) != 2 {
		t.Fatalf("portions: want=2 got=%d", len(got.Portions))
	}
}

func TestProductListNameFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db, newRepoTestLogger(t))
	ctx := context.Background()
	userID := uuid.New()

	for _, name := range []string{"Chicken Breast", "Greek Yogurt", "chicken thigh"} {
		if _, err := repo.Create(ctx, nil, seedProduct(userID, name)); err != nil {
			t.Fatalf("Create %q: %v", name, err)
		}
	}

	// Matching is case-insensitive on a substring.
	products, err := repo.List(ctx, nil, ProductListFilter{UserID: userID, Name: "CHICKEN"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("name filter: want=2 got=%d", len(products))
	}

	products, err = repo.List(ctx, nil, ProductListFilter{UserID: userID})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("unfiltered: want=3 got=%d", len(products))
	}
}
