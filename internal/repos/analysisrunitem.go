package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

type AnalysisRunItemRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, items []*types.AnalysisRunItem) ([]*types.AnalysisRunItem, error)
	ListByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.AnalysisRunItem, error)
}

type analysisRunItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRunItemRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRunItemRepo {
	return &analysisRunItemRepo{
		db:  db,
		log: baseLog.With("repo", "AnalysisRunItemRepo"),
	}
}

func (r *analysisRunItemRepo) CreateBatch(ctx context.Context, tx *gorm.DB, items []*types.AnalysisRunItem) ([]*types.AnalysisRunItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return []*types.AnalysisRunItem{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *analysisRunItemRepo) ListByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.AnalysisRunItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	items := []*types.AnalysisRunItem{}
	if err := transaction.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("ordinal ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
