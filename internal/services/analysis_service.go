package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	redisclient "github.com/nutrilog/nutrilog-backend/internal/clients/redis"
	"github.com/nutrilog/nutrilog-backend/internal/domain"
	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/pagination"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

const (
	defaultRunPageSize = 20
	maxRunPageSize     = 50
)

type CreateRunInput struct {
	MealID    *uuid.UUID
	InputText string
	Threshold *decimal.Decimal
}

type RetryRunInput struct {
	Threshold *decimal.Decimal
	InputText string
}

type ListRunsInput struct {
	MealID      *uuid.UUID
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	PageSize    int
	PageAfter   string
	Sort        string
}

// RunPage is one page of runs plus the opaque cursor for the next page;
// NextCursor is empty on the last page.
type RunPage struct {
	Runs       []*types.AnalysisRun
	NextCursor string
}

// AnalysisService is the run orchestrator: precondition validation, the
// single-active-run guard, retries, cancellation races, and run history.
type AnalysisService interface {
	CreateRun(ctx context.Context, userID uuid.UUID, input CreateRunInput) (*types.AnalysisRun, error)
	RetryRun(ctx context.Context, userID, sourceRunID uuid.UUID, input RetryRunInput) (*types.AnalysisRun, error)
	CancelRun(ctx context.Context, userID, runID uuid.UUID) (*types.AnalysisRun, error)
	ListRuns(ctx context.Context, userID uuid.UUID, input ListRunsInput) (*RunPage, error)
	GetRun(ctx context.Context, userID, runID uuid.UUID) (*types.AnalysisRun, error)
	GetRunItems(ctx context.Context, userID, runID uuid.UUID) ([]*types.AnalysisRunItem, error)
}

type analysisService struct {
	db        *gorm.DB
	log       *logger.Logger
	runRepo   repos.AnalysisRunRepo
	itemRepo  repos.AnalysisRunItemRepo
	mealRepo  repos.MealRepo
	processor AnalysisProcessor
	events    redisclient.RunEventBus

	model            string
	defaultThreshold decimal.Decimal
}

func NewAnalysisService(
	db *gorm.DB,
	log *logger.Logger,
	runRepo repos.AnalysisRunRepo,
	itemRepo repos.AnalysisRunItemRepo,
	mealRepo repos.MealRepo,
	processor AnalysisProcessor,
	events redisclient.RunEventBus,
	model string,
	defaultThreshold decimal.Decimal,
) AnalysisService {
	return &analysisService{
		db:               db,
		log:              log.With("service", "AnalysisService"),
		runRepo:          runRepo,
		itemRepo:         itemRepo,
		mealRepo:         mealRepo,
		processor:        processor,
		events:           events,
		model:            model,
		defaultThreshold: defaultThreshold,
	}
}

func (s *analysisService) CreateRun(ctx context.Context, userID uuid.UUID, input CreateRunInput) (*types.AnalysisRun, error) {
	const op = "AnalysisService.CreateRun"

	hasMeal := input.MealID != nil
	hasText := strings.TrimSpace(input.InputText) != ""
	if hasMeal == hasText {
		return nil, domain.NewError(domain.CodeInvalidInput, op, "exactly one of meal_id or input_text must be supplied", nil)
	}

	threshold, err := s.resolveThreshold(op, input.Threshold)
	if err != nil {
		return nil, err
	}

	runNo := 1
	if hasMeal {
		if _, err := s.mealRepo.GetOwnedByID(ctx, nil, userID, *input.MealID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domain.NewError(domain.CodeNotFound, op, "meal not found", err)
			}
			return nil, domain.MapRepoError(op, err)
		}
		if blockErr := s.checkNoActiveRun(ctx, op, *input.MealID); blockErr != nil {
			return nil, blockErr
		}
		runNo, err = s.runRepo.NextRunNo(ctx, nil, *input.MealID)
		if err != nil {
			return nil, domain.MapRepoError(op, err)
		}
	}

	rawInput, err := json.Marshal(types.RunRawInput{
		MealID:    input.MealID,
		InputText: strings.TrimSpace(input.InputText),
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}

	run := &types.AnalysisRun{
		ID:        uuid.New(),
		UserID:    userID,
		MealID:    input.MealID,
		RunNo:     runNo,
		Status:    types.RunStatusQueued,
		Threshold: threshold,
		Model:     s.model,
		RawInput:  datatypes.JSON(rawInput),
	}
	return s.insertAndProcess(ctx, op, run)
}

func (s *analysisService) RetryRun(ctx context.Context, userID, sourceRunID uuid.UUID, input RetryRunInput) (*types.AnalysisRun, error) {
	const op = "AnalysisService.RetryRun"

	source, err := s.runRepo.GetOwnedByID(ctx, nil, userID, sourceRunID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.CodeNotFound, op, "run not found", err)
		}
		return nil, domain.MapRepoError(op, err)
	}
	if !types.RunStatusTerminal(source.Status) {
		return nil, domain.NewError(domain.CodeInvalidState, op,
			fmt.Sprintf("only terminal runs are retryable, run is %s", source.Status), nil)
	}

	threshold := source.Threshold
	if input.Threshold != nil {
		threshold, err = s.resolveThreshold(op, input.Threshold)
		if err != nil {
			return nil, err
		}
	}

	rawInput := source.RawInput
	if strings.TrimSpace(input.InputText) != "" {
		encoded, err := json.Marshal(types.RunRawInput{
			MealID:    source.MealID,
			InputText: strings.TrimSpace(input.InputText),
		})
		if err != nil {
			return nil, domain.Wrap(domain.CodeInternal, op, err)
		}
		rawInput = datatypes.JSON(encoded)
	}

	runNo := 1
	if source.MealID != nil {
		if blockErr := s.checkNoActiveRun(ctx, op, *source.MealID); blockErr != nil {
			return nil, blockErr
		}
		runNo, err = s.runRepo.NextRunNo(ctx, nil, *source.MealID)
		if err != nil {
			return nil, domain.MapRepoError(op, err)
		}
	}

	run := &types.AnalysisRun{
		ID:           uuid.New(),
		UserID:       userID,
		MealID:       source.MealID,
		RunNo:        runNo,
		Status:       types.RunStatusQueued,
		Threshold:    threshold,
		Model:        s.model,
		RetryOfRunID: &source.ID,
		RawInput:     rawInput,
	}
	return s.insertAndProcess(ctx, op, run)
}

func (s *analysisService) CancelRun(ctx context.Context, userID, runID uuid.UUID) (*types.AnalysisRun, error) {
	const op = "AnalysisService.CancelRun"

	// Ownership first, so a foreign run reads as absent.
	if _, err := s.runRepo.GetOwnedByID(ctx, nil, userID, runID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.CodeNotFound, op, "run not found", err)
		}
		return nil, domain.MapRepoError(op, err)
	}

	rows, err := s.runRepo.CancelIfActive(ctx, nil, runID, types.RunErrorCodeUserCancelled, "cancelled by user")
	if err != nil {
		return nil, domain.MapRepoError(op, err)
	}
	if rows == 0 {
		// Re-read to disambiguate "already terminal" from "gone".
		run, err := s.runRepo.GetOwnedByID(ctx, nil, userID, runID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domain.NewError(domain.CodeNotFound, op, "run not found", err)
			}
			return nil, domain.MapRepoError(op, err)
		}
		return nil, domain.ConflictError(op,
			fmt.Sprintf("run is already %s", run.Status), run.ID.String())
	}

	run, err := s.runRepo.GetOwnedByID(ctx, nil, userID, runID)
	if err != nil {
		return nil, domain.MapRepoError(op, err)
	}
	s.publish(ctx, run)
	return run, nil
}

func (s *analysisService) ListRuns(ctx context.Context, userID uuid.UUID, input ListRunsInput) (*RunPage, error) {
	const op = "AnalysisService.ListRuns"

	pageSize := input.PageSize
	if pageSize == 0 {
		pageSize = defaultRunPageSize
	}
	if pageSize < 1 || pageSize > maxRunPageSize {
		return nil, domain.NewError(domain.CodeInvalidInput, op,
			fmt.Sprintf("page_size must be between 1 and %d", maxRunPageSize), nil)
	}

	desc := true
	switch input.Sort {
	case "", "-created_at":
	case "created_at":
		desc = false
	default:
		return nil, domain.NewError(domain.CodeInvalidInput, op, "sort must be created_at or -created_at", nil)
	}

	if input.Status != "" {
		switch input.Status {
		case types.RunStatusQueued, types.RunStatusRunning, types.RunStatusSucceeded,
			types.RunStatusFailed, types.RunStatusCancelled:
		default:
			return nil, domain.NewError(domain.CodeInvalidInput, op, "unknown status filter", nil)
		}
	}

	var after *pagination.Cursor
	if input.PageAfter != "" {
		cursor, err := pagination.Decode(input.PageAfter)
		if err != nil {
			return nil, err
		}
		after = &cursor
	}

	runs, err := s.runRepo.List(ctx, nil, repos.RunListFilter{
		UserID:      userID,
		MealID:      input.MealID,
		Status:      input.Status,
		CreatedFrom: input.CreatedFrom,
		CreatedTo:   input.CreatedTo,
		Limit:       pageSize + 1,
		After:       after,
		Desc:        desc,
	})
	if err != nil {
		return nil, domain.MapRepoError(op, err)
	}

	page := &RunPage{Runs: runs}
	if len(runs) > pageSize {
		page.Runs = runs[:pageSize]
		last := page.Runs[len(page.Runs)-1]
		page.NextCursor = pagination.Encode(last.CreatedAt, last.ID)
	}
	return page, nil
}

func (s *analysisService) GetRun(ctx context.Context, userID, runID uuid.UUID) (*types.AnalysisRun, error) {
	const op = "AnalysisService.GetRun"
	run, err := s.runRepo.GetOwnedByID(ctx, nil, userID, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.CodeNotFound, op, "run not found", err)
		}
		return nil, domain.MapRepoError(op, err)
	}
	return run, nil
}

func (s *analysisService) GetRunItems(ctx context.Context, userID, runID uuid.UUID) ([]*types.AnalysisRunItem, error) {
	const op = "AnalysisService.GetRunItems"
	if _, err := s.runRepo.GetOwnedByID(ctx, nil, userID, runID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.CodeNotFound, op, "run not found", err)
		}
		return nil, domain.MapRepoError(op, err)
	}
	items, err := s.itemRepo.ListByRunID(ctx, nil, runID)
	if err != nil {
		return nil, domain.MapRepoError(op, err)
	}
	return items, nil
}

func (s *analysisService) resolveThreshold(op string, override *decimal.Decimal) (decimal.Decimal, error) {
	threshold := s.defaultThreshold
	if override != nil {
		threshold = *override
	}
	if threshold.IsNegative() || threshold.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, domain.NewError(domain.CodeInvalidInput, op, "threshold must be within [0,1]", nil)
	}
	return threshold, nil
}

// checkNoActiveRun is the friendly pre-check that names the blocking run.
// The partial unique index on (meal_id) over active statuses closes the
// race this check alone would leave open.
func (s *analysisService) checkNoActiveRun(ctx context.Context, op string, mealID uuid.UUID) error {
	active, err := s.runRepo.GetActiveByMealID(ctx, nil, mealID)
	if err != nil {
		return domain.MapRepoError(op, err)
	}
	if active != nil {
		return domain.ConflictError(op,
			fmt.Sprintf("meal already has an active run %s, retry after it finishes", active.ID), active.ID.String())
	}
	return nil
}

// insertAndProcess persists the queued run and hands it straight to the
// processor; the caller gets the final post-processing state, not the
// queued placeholder.
func (s *analysisService) insertAndProcess(ctx context.Context, op string, run *types.AnalysisRun) (*types.AnalysisRun, error) {
	if _, err := s.runRepo.Create(ctx, nil, run); err != nil {
		mapped := domain.MapRepoError(op, err)
		if domain.IsCode(mapped, domain.CodeConflict) && run.MealID != nil {
			// Lost the insert race to a concurrent create for the same meal.
			if active, activeErr := s.runRepo.GetActiveByMealID(ctx, nil, *run.MealID); activeErr == nil && active != nil {
				return nil, domain.ConflictError(op,
					fmt.Sprintf("meal already has an active run %s, retry after it finishes", active.ID), active.ID.String())
			}
		}
		return nil, mapped
	}
	s.publish(ctx, run)

	final, err := s.processor.Process(ctx, run)
	if err != nil {
		// Double fault inside the processor; surface as internal after the
		// processor has already logged it.
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	return final, nil
}

func (s *analysisService) publish(ctx context.Context, run *types.AnalysisRun) {
	if s.events == nil {
		return
	}
	event := redisclient.RunEvent{
		RunID:  run.ID,
		UserID: run.UserID,
		MealID: run.MealID,
		Status: run.Status,
		At:     time.Now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("Run event publish failed", "run_id", run.ID, "error", err)
	}
}
