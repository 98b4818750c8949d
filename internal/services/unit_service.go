package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/domain"
	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

type CreateUnitInput struct {
	Code         string
	Name         string
	GramsPerUnit decimal.Decimal
}

// UnitService maintains the shared unit catalog used to normalize
// free-form quantities ("2 cups") into grams.
type UnitService interface {
	CreateUnit(ctx context.Context, input CreateUnitInput) (*types.UnitDefinition, error)
	ListUnits(ctx context.Context) ([]*types.UnitDefinition, error)
}

type unitService struct {
	db       *gorm.DB
	log      *logger.Logger
	unitRepo repos.UnitDefinitionRepo
}

func NewUnitService(db *gorm.DB, log *logger.Logger, unitRepo repos.UnitDefinitionRepo) UnitService {
	return &unitService{
		db:       db,
		log:      log.With("service", "UnitService"),
		unitRepo: unitRepo,
	}
}

func (s *unitService) CreateUnit(ctx context.Context, input CreateUnitInput) (*types.UnitDefinition, error) {
	const op = "UnitService.CreateUnit"

	code := strings.ToLower(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, domain.NewError(domain.CodeInvalidInput, op, "code is required", nil)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewError(domain.CodeInvalidInput, op, "name is required", nil)
	}
	if !input.GramsPerUnit.IsPositive() {
		return nil, domain.NewError(domain.CodeInvalidInput, op, "grams_per_unit must be positive", nil)
	}

	existing, err := s.unitRepo.GetByCode(ctx, nil, code)
	if err != nil {
		return nil, domain.MapRepoError(op, err)
	}
	if existing != nil {
		return nil, domain.NewError(domain.CodeConflict, op, "unit code already exists", nil)
	}

	unit := &types.UnitDefinition{
		ID:           uuid.New(),
		Code:         code,
		Name:         name,
		GramsPerUnit: input.GramsPerUnit,
	}
	if _, err := s.unitRepo.Create(ctx, nil, unit); err != nil {
		return nil, domain.MapRepoError(op, err)
	}
	return unit, nil
}

func (s *unitService) ListUnits(ctx context.Context) ([]*types.UnitDefinition, error) {
	const op = "UnitService.ListUnits"
	units, err := s.unitRepo.ListAll(ctx, nil)
	if err != nil {
		return nil, domain.MapRepoError(op, err)
	}
	return units, nil
}
