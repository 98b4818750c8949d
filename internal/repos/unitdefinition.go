package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

type UnitDefinitionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, unit *types.UnitDefinition) (*types.UnitDefinition, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.UnitDefinition, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.UnitDefinition, error)
}

type unitDefinitionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnitDefinitionRepo(db *gorm.DB, baseLog *logger.Logger) UnitDefinitionRepo {
	return &unitDefinitionRepo{
		db:  db,
		log: baseLog.With("repo", "UnitDefinitionRepo"),
	}
}

func (r *unitDefinitionRepo) Create(ctx context.Context, tx *gorm.DB, unit *types.UnitDefinition) (*types.UnitDefinition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(unit).Error; err != nil {
		return nil, err
	}
	return unit, nil
}

func (r *unitDefinitionRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.UnitDefinition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var unit types.UnitDefinition
	err := transaction.WithContext(ctx).
		Where("code = ?", code).
		First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *unitDefinitionRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.UnitDefinition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	units := []*types.UnitDefinition{}
	if err := transaction.WithContext(ctx).
		Order("code ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}
