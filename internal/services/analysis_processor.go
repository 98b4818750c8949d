package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	openaiclient "github.com/nutrilog/nutrilog-backend/internal/clients/openai"
	redisclient "github.com/nutrilog/nutrilog-backend/internal/clients/redis"
	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

// Run error codes persisted on failed/cancelled runs.
const (
	RunErrUpstreamAuth           = "UPSTREAM_AUTH"
	RunErrUpstreamRateLimited    = "UPSTREAM_RATE_LIMITED"
	RunErrUpstreamInvalidRequest = "UPSTREAM_INVALID_REQUEST"
	RunErrUpstreamUnavailable    = "UPSTREAM_UNAVAILABLE"
	RunErrUpstreamData           = "UPSTREAM_DATA_ERROR"
	RunErrInternal               = "INTERNAL_ERROR"
)

// AIChatClient is the slice of the OpenAI client the processor needs.
type AIChatClient interface {
	Model() string
	CreateChatCompletion(ctx context.Context, req openaiclient.ChatCompletionRequest) (*openaiclient.ChatCompletion, error)
}

// AIPricing converts a usage report into a cost in minor units.
type AIPricing struct {
	PromptPer1K     decimal.Decimal
	CompletionPer1K decimal.Decimal
	Currency        string
}

func (p AIPricing) CostMinorUnits(usage *openaiclient.Usage) int64 {
	if usage == nil {
		return 0
	}
	perThousand := decimal.NewFromInt(1000)
	cost := decimal.NewFromInt(usage.PromptTokens).Div(perThousand).Mul(p.PromptPer1K).
		Add(decimal.NewFromInt(usage.CompletionTokens).Div(perThousand).Mul(p.CompletionPer1K))
	return cost.Round(0).IntPart()
}

// AnalysisProcessor drives one run from queued to a terminal state. The
// contract is "always return a terminal run"; the error return is non-nil
// only in the double-fault case where even the failure write failed.
type AnalysisProcessor interface {
	Process(ctx context.Context, run *types.AnalysisRun) (*types.AnalysisRun, error)
}

type analysisProcessor struct {
	db          *gorm.DB
	log         *logger.Logger
	runRepo     repos.AnalysisRunRepo
	itemRepo    repos.AnalysisRunItemRepo
	mealRepo    repos.MealRepo
	productRepo repos.ProductRepo
	aiLogRepo   repos.AICallLogRepo
	verifier    IngredientVerifier
	ai          AIChatClient
	pricing     AIPricing
	events      redisclient.RunEventBus
}

func NewAnalysisProcessor(
	db *gorm.DB,
	log *logger.Logger,
	runRepo repos.AnalysisRunRepo,
	itemRepo repos.AnalysisRunItemRepo,
	mealRepo repos.MealRepo,
	productRepo repos.ProductRepo,
	aiLogRepo repos.AICallLogRepo,
	verifier IngredientVerifier,
	ai AIChatClient,
	pricing AIPricing,
	events redisclient.RunEventBus,
) AnalysisProcessor {
	return &analysisProcessor{
		db:          db,
		log:         log.With("service", "AnalysisProcessor"),
		runRepo:     runRepo,
		itemRepo:    itemRepo,
		mealRepo:    mealRepo,
		productRepo: productRepo,
		aiLogRepo:   aiLogRepo,
		verifier:    verifier,
		ai:          ai,
		pricing:     pricing,
		events:      events,
	}
}

func (p *analysisProcessor) Process(ctx context.Context, run *types.AnalysisRun) (final *types.AnalysisRun, doubleFault error) {
	startedAt := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Analysis processing panicked", "run_id", run.ID, "panic", r)
			final, doubleFault = p.failRun(ctx, run, RunErrInternal, fmt.Sprintf("internal panic: %v", r))
		}
	}()

	rows, err := p.runRepo.MarkRunning(ctx, nil, run.ID)
	if err != nil {
		return p.failRun(ctx, run, RunErrInternal, err.Error())
	}
	if rows == 0 {
		// Cancelled before processing started; the stored state wins.
		return p.reload(ctx, run)
	}
	run.Status = types.RunStatusRunning
	p.publish(ctx, run)

	completion, err := p.callProvider(ctx, run)
	if err != nil {
		code, msg := classifyRunError(err)
		return p.failRun(ctx, run, code, msg)
	}

	candidates, err := parseCandidates(completion)
	if err != nil {
		return p.failRun(ctx, run, RunErrUpstreamData, err.Error())
	}

	items, err := p.buildItems(ctx, run, candidates)
	if err != nil {
		return p.failRun(ctx, run, RunErrInternal, err.Error())
	}
	if _, err := p.itemRepo.CreateBatch(ctx, nil, items); err != nil {
		return p.failRun(ctx, run, RunErrInternal, err.Error())
	}

	latencyMS := time.Since(startedAt).Milliseconds()
	var tokens int64
	if completion.Usage != nil {
		tokens = completion.Usage.TotalTokens
	}
	costMinor := p.pricing.CostMinorUnits(completion.Usage)
	rawPayload, _ := json.Marshal(completion)

	now := time.Now()
	rows, err = p.runRepo.CompleteIfRunning(ctx, nil, run.ID, map[string]interface{}{
		"status":           types.RunStatusSucceeded,
		"latency_ms":       latencyMS,
		"tokens":           tokens,
		"cost_minor_units": costMinor,
		"cost_currency":    p.pricing.Currency,
		"raw_response":     datatypes.JSON(rawPayload),
		"completed_at":     now,
	})
	if err != nil {
		return p.failRun(ctx, run, RunErrInternal, err.Error())
	}
	if rows == 0 {
		// A concurrent cancel ended the run while we were processing.
		// Results were written harmlessly; the cancelled state stands.
		p.log.Warn("Run cancelled during processing, discarding success transition", "run_id", run.ID)
		return p.reload(ctx, run)
	}

	finalRun, err := p.runRepo.GetByID(ctx, nil, run.ID)
	if err != nil {
		return run, err
	}

	// Meal denormalization is an independent outcome: its failure never
	// flips a succeeded run to failed.
	if finalRun.MealID != nil {
		if err := p.writeBackMealTotals(ctx, *finalRun.MealID, items); err != nil {
			p.log.Warn("Meal totals write-back failed", "run_id", run.ID, "meal_id", *finalRun.MealID, "error", err)
		}
	}

	p.publish(ctx, finalRun)
	return finalRun, nil
}

// callProvider builds the prompt, calls the provider, and records the
// audit log row for the call.
func (p *analysisProcessor) callProvider(ctx context.Context, run *types.AnalysisRun) (*openaiclient.ChatCompletion, error) {
	var rawInput types.RunRawInput
	if err := json.Unmarshal(run.RawInput, &rawInput); err != nil {
		return nil, fmt.Errorf("run raw input is unreadable: %w", err)
	}

	// A retry override in raw_input wins over the meal reference; the meal
	// is only the fallback description for runs created without text.
	inputText := rawInput.InputText
	if inputText == "" && rawInput.MealID != nil {
		meal, err := p.mealRepo.GetOwnedByID(ctx, nil, run.UserID, *rawInput.MealID)
		if err != nil {
			return nil, fmt.Errorf("loading meal for analysis: %w", err)
		}
		inputText = meal.Name
		if meal.Notes != "" {
			inputText += "\n" + meal.Notes
		}
	}

	catalog, err := p.productRepo.List(ctx, nil, repos.ProductListFilter{
		UserID: run.UserID,
		Limit:  200,
	})
	if err != nil {
		return nil, fmt.Errorf("loading product catalog: %w", err)
	}

	userPrompt := buildAnalysisUserPrompt(inputText, catalog, run.Threshold)
	req := openaiclient.ChatCompletionRequest{
		Model: run.Model,
		Messages: []openaiclient.Message{
			{Role: openaiclient.RoleSystem, Content: analysisSystemPrompt},
			{Role: openaiclient.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &openaiclient.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &openaiclient.JSONSchema{
				Name:   analysisSchemaName,
				Schema: analysisResponseSchema(),
				Strict: true,
			},
		},
		Temperature: 0.2,
	}

	completion, callErr := p.ai.CreateChatCompletion(ctx, req)
	p.auditCall(ctx, run, userPrompt, completion, callErr)
	if callErr != nil {
		return nil, callErr
	}
	return completion, nil
}

func (p *analysisProcessor) auditCall(ctx context.Context, run *types.AnalysisRun, prompt string, completion *openaiclient.ChatCompletion, callErr error) {
	entry := &types.AICallLog{
		ID:       uuid.New(),
		UserID:   &run.UserID,
		RunID:    &run.ID,
		CallType: "meal_analysis",
		Model:    run.Model,
		Prompt:   prompt,
		Success:  callErr == nil,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if completion != nil {
		if len(completion.Choices) > 0 {
			entry.Response = completion.Choices[0].Message.Content
		}
		if completion.Usage != nil {
			if usage, err := json.Marshal(completion.Usage); err == nil {
				entry.Usage = datatypes.JSON(usage)
			}
		}
	}
	if _, err := p.aiLogRepo.Create(ctx, nil, []*types.AICallLog{entry}); err != nil {
		p.log.Warn("AI call audit write failed", "run_id", run.ID, "error", err)
	}
}

type modelIngredient struct {
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	WeightGrams decimal.Decimal `json:"weight_grams"`
	Confidence  decimal.Decimal `json:"confidence"`
	ProductID   *string         `json:"product_id"`
	Calories    decimal.Decimal `json:"calories"`
	Protein     decimal.Decimal `json:"protein"`
	Fat         decimal.Decimal `json:"fat"`
	Carbs       decimal.Decimal `json:"carbs"`
}

type modelAnalysisPayload struct {
	Ingredients []modelIngredient `json:"ingredients"`
}

func parseCandidates(completion *openaiclient.ChatCompletion) ([]IngredientCandidate, error) {
	content := completion.Choices[0].Message.Content
	var payload modelAnalysisPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("model output is not valid analysis JSON: %w", err)
	}

	candidates := make([]IngredientCandidate, 0, len(payload.Ingredients))
	for _, ing := range payload.Ingredients {
		if ing.Name == "" || !ing.Quantity.IsPositive() {
			return nil, fmt.Errorf("model returned an ingredient without a name or positive quantity")
		}
		candidate := IngredientCandidate{
			Name:        ing.Name,
			Quantity:    ing.Quantity,
			Unit:        ing.Unit,
			WeightGrams: ing.WeightGrams,
			Confidence:  ing.Confidence,
			Calories:    ing.Calories,
			Protein:     ing.Protein,
			Fat:         ing.Fat,
			Carbs:       ing.Carbs,
		}
		if ing.ProductID != nil && *ing.ProductID != "" {
			if id, err := uuid.Parse(*ing.ProductID); err == nil {
				candidate.ProductID = &id
			}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (p *analysisProcessor) buildItems(ctx context.Context, run *types.AnalysisRun, candidates []IngredientCandidate) ([]*types.AnalysisRunItem, error) {
	items := make([]*types.AnalysisRunItem, 0, len(candidates))
	for i, candidate := range candidates {
		candidate.UserID = run.UserID
		// Matches below the run's confidence threshold are unlinked and go
		// through the missing-reference review path.
		if candidate.ProductID != nil && candidate.Confidence.LessThan(run.Threshold) {
			candidate.ProductID = nil
		}

		verification, err := p.verifier.Verify(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("verifying ingredient %d: %w", i+1, err)
		}
		issues, err := json.Marshal(verification)
		if err != nil {
			return nil, fmt.Errorf("encoding verification for ingredient %d: %w", i+1, err)
		}

		items = append(items, &types.AnalysisRunItem{
			ID:                 uuid.New(),
			RunID:              run.ID,
			Ordinal:            i + 1,
			RawName:            candidate.Name,
			RawUnit:            candidate.Unit,
			Quantity:           candidate.Quantity,
			ProductID:          candidate.ProductID,
			WeightGrams:        candidate.WeightGrams,
			Confidence:         candidate.Confidence,
			Calories:           candidate.Calories,
			Protein:            candidate.Protein,
			Fat:                candidate.Fat,
			Carbs:              candidate.Carbs,
			NeedsReview:        verification.NeedsReview,
			VerificationIssues: datatypes.JSON(issues),
		})
	}
	return items, nil
}

func (p *analysisProcessor) writeBackMealTotals(ctx context.Context, mealID uuid.UUID, items []*types.AnalysisRunItem) error {
	var totals repos.MealTotals
	for _, item := range items {
		totals.Calories = totals.Calories.Add(item.Calories)
		totals.Protein = totals.Protein.Add(item.Protein)
		totals.Fat = totals.Fat.Add(item.Fat)
		totals.Carbs = totals.Carbs.Add(item.Carbs)
	}
	return p.mealRepo.UpdateTotals(ctx, nil, mealID, totals)
}

// failRun converts any processing failure into a terminal failed run,
// unless a concurrent cancel already ended it.
func (p *analysisProcessor) failRun(ctx context.Context, run *types.AnalysisRun, code, message string) (*types.AnalysisRun, error) {
	rows, err := p.runRepo.CompleteIfRunning(ctx, nil, run.ID, map[string]interface{}{
		"status":        types.RunStatusFailed,
		"error_code":    code,
		"error_message": message,
		"completed_at":  time.Now(),
	})
	if err != nil {
		// Double fault: even the failure write failed.
		p.log.Error("Failed to mark run as failed", "run_id", run.ID, "error", err)
		return run, err
	}
	if rows == 0 {
		return p.reload(ctx, run)
	}
	finalRun, err := p.runRepo.GetByID(ctx, nil, run.ID)
	if err != nil {
		return run, err
	}
	p.publish(ctx, finalRun)
	return finalRun, nil
}

func (p *analysisProcessor) reload(ctx context.Context, run *types.AnalysisRun) (*types.AnalysisRun, error) {
	reloaded, err := p.runRepo.GetByID(ctx, nil, run.ID)
	if err != nil {
		return run, err
	}
	return reloaded, nil
}

func (p *analysisProcessor) publish(ctx context.Context, run *types.AnalysisRun) {
	if p.events == nil {
		return
	}
	event := redisclient.RunEvent{
		RunID:  run.ID,
		UserID: run.UserID,
		MealID: run.MealID,
		Status: run.Status,
		At:     time.Now(),
	}
	if err := p.events.Publish(ctx, event); err != nil {
		p.log.Warn("Run event publish failed", "run_id", run.ID, "error", err)
	}
}

// classifyRunError maps a provider failure to the persisted run error code.
func classifyRunError(err error) (code, message string) {
	var authErr *openaiclient.AuthorizationError
	if errors.As(err, &authErr) {
		return RunErrUpstreamAuth, err.Error()
	}
	var rateErr *openaiclient.RateLimitError
	if errors.As(err, &rateErr) {
		return RunErrUpstreamRateLimited, err.Error()
	}
	var reqErr *openaiclient.InvalidRequestError
	if errors.As(err, &reqErr) {
		return RunErrUpstreamInvalidRequest, err.Error()
	}
	var dataErr *openaiclient.DataError
	if errors.As(err, &dataErr) {
		return RunErrUpstreamData, err.Error()
	}
	var unavailErr *openaiclient.ServiceUnavailableError
	if errors.As(err, &unavailErr) {
		return RunErrUpstreamUnavailable, err.Error()
	}
	return RunErrInternal, err.Error()
}
