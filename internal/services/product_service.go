package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/domain"
	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/pagination"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

const (
	defaultProductPageSize = 20
	maxProductPageSize     = 100
)

type PortionInput struct {
	Name        string
	WeightGrams decimal.Decimal
}

type CreateProductInput struct {
	Name            string
	Brand           string
	CaloriesPer100g decimal.Decimal
	ProteinPer100g  decimal.Decimal
	FatPer100g      decimal.Decimal
	CarbsPer100g    decimal.Decimal
	Portions        []PortionInput
}

type ListProductsInput struct {
	Name      string
	PageSize  int
	PageAfter string
	Sort      string
}

type ProductPage struct {
	Products   []*types.Product
	NextCursor string
}

type ProductService interface {
	CreateProduct(ctx context.Context, userID uuid.UUID, input CreateProductInput) (*types.Product, error)
	GetProduct(ctx context.Context, userID, productID uuid.UUID) (*types.Product, error)
	ListProducts(ctx context.Context, userID uuid.UUID, input ListProductsInput) (*ProductPage, error)
}

type productService struct {
	db          *gorm.DB
	log         *logger.Logger
	productRepo repos.ProductRepo
}

func NewProductService(db *gorm.DB, log *logger.Logger, productRepo repos.ProductRepo) ProductService {
	return &productService{
		db:          db,
		log:         log.With("service", "ProductService"),
		productRepo: productRepo,
	}
}

func (s *productService) CreateProduct(ctx context.Context, userID uuid.UUID, input CreateProductInput) (*types.Product, error) {
	const op = "ProductService.CreateProduct"

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewError(domain.CodeInvalidInput, op, "name is required", nil)
	}
	for _, macro := range []decimal.Decimal{
		input.CaloriesPer100g, input.ProteinPer100g, input.FatPer100g, input.CarbsPer100g,
	} {
		if macro.IsNegative() {
			return nil, domain.NewError(domain.CodeInvalidInput, op, "per-100g macros must be non-negative", nil)
		}
	}

	product := &types.Product{
		ID:              uuid.New(),
		UserID:          userID,
		Name:            name,
		Brand:           strings.TrimSpace(input.Brand),
		CaloriesPer100g: input.CaloriesPer100g,
		ProteinPer100g:  input.ProteinPer100g,
		FatPer100g:      input.FatPer100g,
		CarbsPer100g:    input.CarbsPer100g,
	}
	for _, portion := range input.Portions {
		portionName := strings.TrimSpace(portion.Name)
		if portionName == "" {
			return nil, domain.NewError(domain.CodeInvalidInput, op, "portion name is required", nil)
		}
		if !portion.WeightGrams.IsPositive() {
			return nil, domain.NewError(domain.CodeInvalidInput, op, "portion weight_grams must be positive", nil)
		}
		product.Portions = append(product.Portions, types.ProductPortion{
			ID:          uuid.New(),
			ProductID:   product.ID,
			Name:        portionName,
			WeightGrams: portion.WeightGrams,
		})
	}

	if _, err := s.productRepo.Create(ctx, nil, product); err != nil {
		return nil, domain.MapRepoError(op, err)
	}
	return product, nil
}

func (s *productService) GetProduct(ctx context.Context, userID, productID uuid.UUID) (*types.Product, error) {
	const op = "ProductService.GetProduct"
	product, err := s.productRepo.GetOwnedByID(ctx, nil, userID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.CodeNotFound, op, "product not found", err)
		}
		return nil, domain.MapRepoError(op, err)
	}
	return product, nil
}

func (s *productService) ListProducts(ctx context.Context, userID uuid.UUID, input ListProductsInput) (*ProductPage, error) {
	const op = "ProductService.ListProducts"

	pageSize := input.PageSize
	if pageSize == 0 {
		pageSize = defaultProductPageSize
	}
	if pageSize < 1 || pageSize > maxProductPageSize {
		return nil, domain.NewError(domain.CodeInvalidInput, op,
			fmt.Sprintf("page_size must be between 1 and %d", maxProductPageSize), nil)
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

	products, err := s.productRepo.List(ctx, nil, repos.ProductListFilter{
		UserID: userID,
		Name:   strings.TrimSpace(input.Name),
		Limit:  pageSize + 1,
		After:  after,
		Desc:   desc,
	})
	if err != nil {
		return nil, domain.MapRepoError(op, err)
	}

	page := &ProductPage{Products: products}
	if len(products) > pageSize {
		page.Products = products[:pageSize]
		last := page.Products[len(page.Products)-1]
		page.NextCursor = pagination.Encode(last.CreatedAt, last.ID)
	}
	return page, nil
}
