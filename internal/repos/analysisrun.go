package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/pagination"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

// RunListFilter narrows the run listing. Limit is the raw row budget; the
// caller passes page_size+1 to detect the next page.
type RunListFilter struct {
	UserID      uuid.UUID
	MealID      *uuid.UUID
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	After       *pagination.Cursor
	Desc        bool
}

type AnalysisRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.AnalysisRun) (*types.AnalysisRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisRun, error)
	GetOwnedByID(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*types.AnalysisRun, error)
	GetActiveByMealID(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisRun, error)
	NextRunNo(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (int, error)
	MarkRunning(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error)
	CompleteIfRunning(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (int64, error)
	CancelIfActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, errorCode, errorMessage string) (int64, error)
	List(ctx context.Context, tx *gorm.DB, filter RunListFilter) ([]*types.AnalysisRun, error)
}

type analysisRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRunRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRunRepo {
	return &analysisRunRepo{
		db:  db,
		log: baseLog.With("repo", "AnalysisRunRepo"),
	}
}

func (r *analysisRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.AnalysisRun) (*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *analysisRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.AnalysisRun
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *analysisRunRepo) GetOwnedByID(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.AnalysisRun
	if err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *analysisRunRepo) GetActiveByMealID(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.AnalysisRun
	err := transaction.WithContext(ctx).
		Where("meal_id = ? AND status IN ?", mealID, types.ActiveRunStatuses).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *analysisRunRepo) NextRunNo(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var maxRunNo int
	err := transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("meal_id = ?", mealID).
		Select("COALESCE(MAX(run_no), 0)").
		Scan(&maxRunNo).Error
	if err != nil {
		return 0, err
	}
	return maxRunNo + 1, nil
}

// MarkRunning flips queued -> running, conditional on the run still being
// queued so a racing cancel wins.
func (r *analysisRunRepo) MarkRunning(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("id = ? AND status = ?", id, types.RunStatusQueued).
		Updates(map[string]interface{}{
			"status":     types.RunStatusRunning,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// CompleteIfRunning applies a terminal update conditional on the run still
// being in the running state. Zero rows affected means a concurrent cancel
// already ended the run.
func (r *analysisRunRepo) CompleteIfRunning(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("id = ? AND status = ?", id, types.RunStatusRunning).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// CancelIfActive is the single atomic conditional write of the cancel path:
// update where status is not terminal. Zero rows affected means the run was
// already terminal or does not exist; the caller re-reads to disambiguate.
func (r *analysisRunRepo) CancelIfActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, errorCode, errorMessage string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("id = ? AND status NOT IN ?", id, types.TerminalRunStatuses).
		Updates(map[string]interface{}{
			"status":        types.RunStatusCancelled,
			"error_code":    errorCode,
			"error_message": errorMessage,
			"completed_at":  now,
			"updated_at":    now,
		})
	return res.RowsAffected, res.Error
}

func (r *analysisRunRepo) List(ctx context.Context, tx *gorm.DB, filter RunListFilter) ([]*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("user_id = ?", filter.UserID)
	if filter.MealID != nil {
		q = q.Where("meal_id = ?", *filter.MealID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		q = q.Where("created_at <= ?", *filter.CreatedTo)
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

	var runs []*types.AnalysisRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
