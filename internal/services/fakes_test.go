package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	openaiclient "github.com/nutrilog/nutrilog-backend/internal/clients/openai"
	redisclient "github.com/nutrilog/nutrilog-backend/internal/clients/redis"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

// fakeRunRepo mirrors the conditional-update semantics of the real repo,
// including the partial unique index on active runs per meal.
type fakeRunRepo struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*types.AnalysisRun
	clock     time.Time
	createErr error
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{
		runs:  map[uuid.UUID]*types.AnalysisRun{},
		clock: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRunRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.AnalysisRun) (*types.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if run.MealID != nil {
		for _, existing := range f.runs {
			if existing.MealID != nil && *existing.MealID == *run.MealID && !types.RunStatusTerminal(existing.Status) {
				return nil, gorm.ErrDuplicatedKey
			}
		}
	}
	run.CreatedAt = f.tick()
	run.UpdatedAt = run.CreatedAt
	stored := *run
	f.runs[run.ID] = &stored
	return run, nil
}

func (f *fakeRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *run
	return &out, nil
}

func (f *fakeRunRepo) GetOwnedByID(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*types.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || run.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	out := *run
	return &out, nil
}

func (f *fakeRunRepo) GetActiveByMealID(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.runs {
		if run.MealID != nil && *run.MealID == mealID && !types.RunStatusTerminal(run.Status) {
			out := *run
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeRunRepo) NextRunNo(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, run := range f.runs {
		if run.MealID != nil && *run.MealID == mealID && run.RunNo > max {
			max = run.RunNo
		}
	}
	return max + 1, nil
}

func (f *fakeRunRepo) MarkRunning(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || run.Status != types.RunStatusQueued {
		return 0, nil
	}
	run.Status = types.RunStatusRunning
	run.UpdatedAt = f.tick()
	return 1, nil
}

func (f *fakeRunRepo) CompleteIfRunning(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || run.Status != types.RunStatusRunning {
		return 0, nil
	}
	applyRunUpdates(run, updates)
	run.UpdatedAt = f.tick()
	return 1, nil
}

func (f *fakeRunRepo) CancelIfActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, errorCode, errorMessage string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || types.RunStatusTerminal(run.Status) {
		return 0, nil
	}
	now := f.tick()
	run.Status = types.RunStatusCancelled
	run.ErrorCode = errorCode
	run.ErrorMessage = errorMessage
	run.CompletedAt = &now
	run.UpdatedAt = now
	return 1, nil
}

func (f *fakeRunRepo) List(ctx context.Context, tx *gorm.DB, filter repos.RunListFilter) ([]*types.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.AnalysisRun
	for _, run := range f.runs {
		if run.UserID != filter.UserID {
			continue
		}
		if filter.MealID != nil && (run.MealID == nil || *run.MealID != *filter.MealID) {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.CreatedFrom != nil && run.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && run.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		if filter.After != nil {
			if filter.Desc {
				if !run.CreatedAt.Before(filter.After.SortValue) {
					continue
				}
			} else {
				if !run.CreatedAt.After(filter.After.SortValue) {
					continue
				}
			}
		}
		copied := *run
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID][]*types.AnalysisRunItem
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: map[uuid.UUID][]*types.AnalysisRunItem{}}
}

func (f *fakeItemRepo) CreateBatch(ctx context.Context, tx *gorm.DB, items []*types.AnalysisRunItem) ([]*types.AnalysisRunItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.items[item.RunID] = append(f.items[item.RunID], item)
	}
	return items, nil
}

func (f *fakeItemRepo) ListByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.AnalysisRunItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.AnalysisRunItem{}
	out = append(out, f.items[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

type fakeMealRepo struct {
	mu     sync.Mutex
	meals  map[uuid.UUID]*types.Meal
	totals map[uuid.UUID]repos.MealTotals
}

func newFakeMealRepo(meals ...*types.Meal) *fakeMealRepo {
	repo := &fakeMealRepo{
		meals:  map[uuid.UUID]*types.Meal{},
		totals: map[uuid.UUID]repos.MealTotals{},
	}
	for _, m := range meals {
		repo.meals[m.ID] = m
	}
	return repo
}

func (f *fakeMealRepo) Create(ctx context.Context, tx *gorm.DB, meal *types.Meal) (*types.Meal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meals[meal.ID] = meal
	return meal, nil
}

func (f *fakeMealRepo) GetOwnedByID(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*types.Meal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meal, ok := f.meals[id]
	if !ok || meal.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return meal, nil
}

func (f *fakeMealRepo) List(ctx context.Context, tx *gorm.DB, filter repos.MealListFilter) ([]*types.Meal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Meal{}
	for _, meal := range f.meals {
		if meal.UserID == filter.UserID {
			out = append(out, meal)
		}
	}
	return out, nil
}

func (f *fakeMealRepo) SoftDelete(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meal, ok := f.meals[id]
	if !ok || meal.UserID != userID {
		return 0, nil
	}
	delete(f.meals, id)
	return 1, nil
}

func (f *fakeMealRepo) UpdateTotals(ctx context.Context, tx *gorm.DB, id uuid.UUID, totals repos.MealTotals) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals[id] = totals
	return nil
}

type fakeAICallLogRepo struct {
	mu      sync.Mutex
	entries []*types.AICallLog
}

func (f *fakeAICallLogRepo) Create(ctx context.Context, tx *gorm.DB, logs []*types.AICallLog) ([]*types.AICallLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, logs...)
	return logs, nil
}

type fakeEventBus struct {
	mu     sync.Mutex
	events []redisclient.RunEvent
}

func (f *fakeEventBus) Publish(ctx context.Context, event redisclient.RunEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventBus) Close() error { return nil }

func (f *fakeEventBus) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Status)
	}
	return out
}

// fakeAIClient returns a canned completion or error, optionally running a
// hook before answering (used to race a cancel against processing).
type fakeAIClient struct {
	completion *openaiclient.ChatCompletion
	err        error
	beforeCall func()
	calls      int
	lastReq    openaiclient.ChatCompletionRequest
}

func (f *fakeAIClient) Model() string { return "gpt-4o-mini" }

func (f *fakeAIClient) CreateChatCompletion(ctx context.Context, req openaiclient.ChatCompletionRequest) (*openaiclient.ChatCompletion, error) {
	f.calls++
	f.lastReq = req
	if f.beforeCall != nil {
		f.beforeCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

// fakeProcessor marks the run terminal through the repo, the way the real
// processor does, so orchestrator tests observe realistic state.
type fakeProcessor struct {
	runRepo *fakeRunRepo
	status  string
	err     error
	calls   int
}

func (f *fakeProcessor) Process(ctx context.Context, run *types.AnalysisRun) (*types.AnalysisRun, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == "" {
		status = types.RunStatusSucceeded
	}
	if _, err := f.runRepo.MarkRunning(ctx, nil, run.ID); err != nil {
		return nil, err
	}
	now := time.Now()
	if _, err := f.runRepo.CompleteIfRunning(ctx, nil, run.ID, map[string]interface{}{
		"status":       status,
		"completed_at": now,
	}); err != nil {
		return nil, err
	}
	return f.runRepo.GetByID(ctx, nil, run.ID)
}

func applyRunUpdates(run *types.AnalysisRun, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "status":
			run.Status = value.(string)
		case "error_code":
			run.ErrorCode = value.(string)
		case "error_message":
			run.ErrorMessage = value.(string)
		case "cost_currency":
			run.CostCurrency = value.(string)
		case "latency_ms":
			v := value.(int64)
			run.LatencyMS = &v
		case "tokens":
			v := value.(int64)
			run.Tokens = &v
		case "cost_minor_units":
			v := value.(int64)
			run.CostMinorUnits = &v
		case "completed_at":
			v := value.(time.Time)
			run.CompletedAt = &v
		case "raw_response":
			run.RawResponse = value.(datatypes.JSON)
		}
	}
}
