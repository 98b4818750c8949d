package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	openaiclient "github.com/nutrilog/nutrilog-backend/internal/clients/openai"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

type processorTestEnv struct {
	processor   AnalysisProcessor
	runRepo     *fakeRunRepo
	itemRepo    *fakeItemRepo
	mealRepo    *fakeMealRepo
	productRepo *fakeProductRepo
	aiLogRepo   *fakeAICallLogRepo
	ai          *fakeAIClient
	events      *fakeEventBus
}

func newProcessorTestEnv(t *testing.T, ai *fakeAIClient, products ...*types.Product) *processorTestEnv {
	t.Helper()
	log := testServiceLogger(t)
	runRepo := newFakeRunRepo()
	itemRepo := newFakeItemRepo()
	mealRepo := newFakeMealRepo()
	productRepo := newFakeProductRepo(products...)
	aiLogRepo := &fakeAICallLogRepo{}
	events := &fakeEventBus{}
	verifier := NewIngredientVerifier(log, productRepo, dec("15"))
	processor := NewAnalysisProcessor(
		nil, log, runRepo, itemRepo, mealRepo, productRepo, aiLogRepo,
		verifier, ai,
		AIPricing{PromptPer1K: dec("1"), CompletionPer1K: dec("2"), Currency: "USD"},
		events,
	)
	return &processorTestEnv{
		processor:   processor,
		runRepo:     runRepo,
		itemRepo:    itemRepo,
		mealRepo:    mealRepo,
		productRepo: productRepo,
		aiLogRepo:   aiLogRepo,
		ai:          ai,
		events:      events,
	}
}

func queuedRun(env *processorTestEnv, t *testing.T, userID uuid.UUID, rawInput types.RunRawInput) *types.AnalysisRun {
	t.Helper()
	raw, _ := json.Marshal(rawInput)
	run := &types.AnalysisRun{
		ID:        uuid.New(),
		UserID:    userID,
		MealID:    rawInput.MealID,
		RunNo:     1,
		Status:    types.RunStatusQueued,
		Threshold: dec("0.6"),
		Model:     "gpt-4o-mini",
		RawInput:  datatypes.JSON(raw),
	}
	if _, err := env.runRepo.Create(context.Background(), nil, run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return run
}

func queuedTextRun(env *processorTestEnv, t *testing.T, userID uuid.UUID, text string) *types.AnalysisRun {
	t.Helper()
	return queuedRun(env, t, userID, types.RunRawInput{InputText: text})
}

func completionWith(content string) *openaiclient.ChatCompletion {
	return &openaiclient.ChatCompletion{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-mini",
		Choices: []openaiclient.Choice{
			{Message: openaiclient.Message{Role: openaiclient.RoleAssistant, Content: content}},
		},
		Usage: &openaiclient.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}
}

const twoIngredientPayload = `{
	"ingredients": [
		{"name": "egg", "quantity": 2, "unit": "piece", "weight_grams": 120, "confidence": 0.9,
		 "product_id": null, "calories": 186, "protein": 15.6, "fat": 13.2, "carbs": 1.4},
		{"name": "toast", "quantity": 1, "unit": "slice", "weight_grams": 40, "confidence": 0.8,
		 "product_id": null, "calories": 106, "protein": 3.6, "fat": 1.3, "carbs": 19.6}
	]
}`

func TestProcessSuccessWritesItemsAndMetrics(t *testing.T) {
	ai := &fakeAIClient{completion: completionWith(twoIngredientPayload)}
	env := newProcessorTestEnv(t, ai)
	run := queuedTextRun(env, t, uuid.New(), "two eggs and toast")

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if final.Status != types.RunStatusSucceeded {
		t.Fatalf("status: want=%s got=%s (%s)", types.RunStatusSucceeded, final.Status, final.ErrorMessage)
	}
	if final.CompletedAt == nil {
		t.Fatalf("completed_at must be set")
	}
	if final.LatencyMS == nil {
		t.Fatalf("latency must be recorded")
	}
	if final.Tokens == nil || *final.Tokens != 2000 {
		t.Fatalf("tokens: got=%v", final.Tokens)
	}
	// 1000/1000 * 1 + 1000/1000 * 2 = 3 minor units.
	if final.CostMinorUnits == nil || *final.CostMinorUnits != 3 {
		t.Fatalf("cost: got=%v", final.CostMinorUnits)
	}
	if final.CostCurrency != "USD" {
		t.Fatalf("currency: got=%q", final.CostCurrency)
	}
	if len(final.RawResponse) == 0 {
		t.Fatalf("raw response must be stored")
	}

	items, err := env.itemRepo.ListByRunID(context.Background(), nil, run.ID)
	if err != nil {
		t.Fatalf("ListByRunID: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items: want=2 got=%d", len(items))
	}
	if items[0].Ordinal != 1 || items[1].Ordinal != 2 {
		t.Fatalf("ordinals: got=%d,%d", items[0].Ordinal, items[1].Ordinal)
	}
	if items[0].RawName != "egg" {
		t.Fatalf("first item: got=%q", items[0].RawName)
	}
	// Unlinked ingredients go to review.
	if !items[0].NeedsReview {
		t.Fatalf("unlinked item must need review")
	}

	if len(env.aiLogRepo.entries) != 1 || !env.aiLogRepo.entries[0].Success {
		t.Fatalf("audit log: got=%+v", env.aiLogRepo.entries)
	}
	if got := env.events.statuses(); len(got) != 2 || got[0] != types.RunStatusRunning || got[1] != types.RunStatusSucceeded {
		t.Fatalf("published events: got=%v", got)
	}
}

func TestProcessClearsLowConfidenceProductLink(t *testing.T) {
	owner := uuid.New()
	product := chickenProduct(owner)
	payload := `{"ingredients": [
		{"name": "chicken", "quantity": 1, "unit": "portion", "weight_grams": 100, "confidence": 0.4,
		 "product_id": "` + product.ID.String() + `", "calories": 165, "protein": 31, "fat": 3.6, "carbs": 0}
	]}`
	ai := &fakeAIClient{completion: completionWith(payload)}
	env := newProcessorTestEnv(t, ai, product)
	run := queuedTextRun(env, t, owner, "some chicken")

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if final.Status != types.RunStatusSucceeded {
		t.Fatalf("status: got=%s (%s)", final.Status, final.ErrorMessage)
	}

	items, _ := env.itemRepo.ListByRunID(context.Background(), nil, run.ID)
	if len(items) != 1 {
		t.Fatalf("items: want=1 got=%d", len(items))
	}
	// Confidence 0.4 < threshold 0.6: the link is dropped and the item
	// goes through the missing-reference review path.
	if items[0].ProductID != nil {
		t.Fatalf("product link should be cleared below threshold")
	}
	if !items[0].NeedsReview {
		t.Fatalf("item must need review after losing its link")
	}
}

func TestProcessKeepsConfidentProductLink(t *testing.T) {
	owner := uuid.New()
	product := chickenProduct(owner)
	payload := `{"ingredients": [
		{"name": "chicken", "quantity": 1, "unit": "portion", "weight_grams": 100, "confidence": 0.9,
		 "product_id": "` + product.ID.String() + `", "calories": 165, "protein": 31, "fat": 3.6, "carbs": 0}
	]}`
	ai := &fakeAIClient{completion: completionWith(payload)}
	env := newProcessorTestEnv(t, ai, product)
	run := queuedTextRun(env, t, owner, "some chicken")

	if _, err := env.processor.Process(context.Background(), run); err != nil {
		t.Fatalf("Process: %v", err)
	}
	items, _ := env.itemRepo.ListByRunID(context.Background(), nil, run.ID)
	if items[0].ProductID == nil || *items[0].ProductID != product.ID {
		t.Fatalf("product link: got=%v", items[0].ProductID)
	}
	if items[0].NeedsReview {
		t.Fatalf("macros match exactly, no review expected")
	}
}

func userPromptOf(t *testing.T, req openaiclient.ChatCompletionRequest) string {
	t.Helper()
	for _, msg := range req.Messages {
		if msg.Role == openaiclient.RoleUser {
			return msg.Content
		}
	}
	t.Fatalf("request has no user message")
	return ""
}

func TestProcessMealRunUsesMealDescription(t *testing.T) {
	ai := &fakeAIClient{completion: completionWith(twoIngredientPayload)}
	env := newProcessorTestEnv(t, ai)
	userID := uuid.New()
	meal := &types.Meal{ID: uuid.New(), UserID: userID, Name: "grilled chicken salad", Notes: "no dressing"}
	if _, err := env.mealRepo.Create(context.Background(), nil, meal); err != nil {
		t.Fatalf("seed meal: %v", err)
	}
	run := queuedRun(env, t, userID, types.RunRawInput{MealID: &meal.ID})

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if final.Status != types.RunStatusSucceeded {
		t.Fatalf("status: got=%s (%s)", final.Status, final.ErrorMessage)
	}
	prompt := userPromptOf(t, env.ai.lastReq)
	if !strings.Contains(prompt, "grilled chicken salad") || !strings.Contains(prompt, "no dressing") {
		t.Fatalf("prompt must carry the meal description, got:\n%s", prompt)
	}
}

func TestProcessOverrideTextWinsOverMealReference(t *testing.T) {
	ai := &fakeAIClient{completion: completionWith(twoIngredientPayload)}
	env := newProcessorTestEnv(t, ai)
	userID := uuid.New()
	meal := &types.Meal{ID: uuid.New(), UserID: userID, Name: "grilled chicken salad"}
	if _, err := env.mealRepo.Create(context.Background(), nil, meal); err != nil {
		t.Fatalf("seed meal: %v", err)
	}

	// The shape a retry with an input_text override produces: the meal link
	// is kept for lineage, but the override is what gets analyzed.
	run := queuedRun(env, t, userID, types.RunRawInput{
		MealID:    &meal.ID,
		InputText: "three scrambled eggs with butter",
	})

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if final.Status != types.RunStatusSucceeded {
		t.Fatalf("status: got=%s (%s)", final.Status, final.ErrorMessage)
	}
	prompt := userPromptOf(t, env.ai.lastReq)
	if !strings.Contains(prompt, "three scrambled eggs with butter") {
		t.Fatalf("prompt must carry the override text, got:\n%s", prompt)
	}
	if strings.Contains(prompt, "grilled chicken salad") {
		t.Fatalf("override given, meal description must not reach the prompt:\n%s", prompt)
	}
}

func TestProcessUpstreamAuthFailure(t *testing.T) {
	ai := &fakeAIClient{err: &openaiclient.AuthorizationError{StatusCode: 401, Body: "bad key"}}
	env := newProcessorTestEnv(t, ai)
	run := queuedTextRun(env, t, uuid.New(), "two eggs")

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if final.Status != types.RunStatusFailed {
		t.Fatalf("status: want=%s got=%s", types.RunStatusFailed, final.Status)
	}
	if final.ErrorCode != RunErrUpstreamAuth {
		t.Fatalf("error code: want=%s got=%s", RunErrUpstreamAuth, final.ErrorCode)
	}
	if final.CompletedAt == nil {
		t.Fatalf("completed_at must be set on failure")
	}
	if len(env.aiLogRepo.entries) != 1 || env.aiLogRepo.entries[0].Success {
		t.Fatalf("audit log should record the failed call")
	}
}

func TestProcessExhaustedRetriesFailure(t *testing.T) {
	ai := &fakeAIClient{err: &openaiclient.ServiceUnavailableError{Message: "exhausted retries"}}
	env := newProcessorTestEnv(t, ai)
	run := queuedTextRun(env, t, uuid.New(), "two eggs")

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if final.ErrorCode != RunErrUpstreamUnavailable {
		t.Fatalf("error code: want=%s got=%s", RunErrUpstreamUnavailable, final.ErrorCode)
	}
}

func TestProcessMalformedModelOutputIsDataError(t *testing.T) {
	ai := &fakeAIClient{completion: completionWith("this is not json")}
	env := newProcessorTestEnv(t, ai)
	run := queuedTextRun(env, t, uuid.New(), "two eggs")

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if final.Status != types.RunStatusFailed {
		t.Fatalf("status: want=%s got=%s", types.RunStatusFailed, final.Status)
	}
	if final.ErrorCode != RunErrUpstreamData {
		t.Fatalf("error code: want=%s got=%s", RunErrUpstreamData, final.ErrorCode)
	}
}

func TestProcessCancelledBeforeStart(t *testing.T) {
	ai := &fakeAIClient{completion: completionWith(twoIngredientPayload)}
	env := newProcessorTestEnv(t, ai)
	run := queuedTextRun(env, t, uuid.New(), "two eggs")

	// A cancel lands before the processor picks the run up.
	if _, err := env.runRepo.CancelIfActive(context.Background(), nil, run.ID, types.RunErrorCodeUserCancelled, "cancelled by user"); err != nil {
		t.Fatalf("CancelIfActive: %v", err)
	}

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if final.Status != types.RunStatusCancelled {
		t.Fatalf("status: want=%s got=%s", types.RunStatusCancelled, final.Status)
	}
	if env.ai.calls != 0 {
		t.Fatalf("provider must not be called for a cancelled run")
	}
}

func TestProcessCancelledDuringProcessingKeepsCancelledState(t *testing.T) {
	env := newProcessorTestEnv(t, nil)
	run := queuedTextRun(env, t, uuid.New(), "two eggs")

	// Cancel lands while the provider call is in flight.
	ai := &fakeAIClient{
		completion: completionWith(twoIngredientPayload),
		beforeCall: func() {
			if _, err := env.runRepo.CancelIfActive(context.Background(), nil, run.ID, types.RunErrorCodeUserCancelled, "cancelled by user"); err != nil {
				t.Errorf("CancelIfActive: %v", err)
			}
		},
	}
	env.ai = ai
	log := testServiceLogger(t)
	verifier := NewIngredientVerifier(log, env.productRepo, dec("15"))
	env.processor = NewAnalysisProcessor(
		nil, log, env.runRepo, env.itemRepo, env.mealRepo, env.productRepo, env.aiLogRepo,
		verifier, ai,
		AIPricing{PromptPer1K: dec("1"), CompletionPer1K: dec("2"), Currency: "USD"},
		env.events,
	)

	final, err := env.processor.Process(context.Background(), run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// The success transition loses to the concurrent cancel.
	if final.Status != types.RunStatusCancelled {
		t.Fatalf("status: want=%s got=%s", types.RunStatusCancelled, final.Status)
	}
	if final.ErrorCode != types.RunErrorCodeUserCancelled {
		t.Fatalf("error code: want=%s got=%s", types.RunErrorCodeUserCancelled, final.ErrorCode)
	}
}

func TestCostMinorUnitsRounds(t *testing.T) {
	pricing := AIPricing{PromptPer1K: dec("1.5"), CompletionPer1K: dec("6"), Currency: "USD"}

	// 1234/1000*1.5 + 321/1000*6 = 1.851 + 1.926 = 3.777 -> 4.
	got := pricing.CostMinorUnits(&openaiclient.Usage{PromptTokens: 1234, CompletionTokens: 321})
	if got != 4 {
		t.Fatalf("cost: want=4 got=%d", got)
	}
	if pricing.CostMinorUnits(nil) != 0 {
		t.Fatalf("nil usage: want=0")
	}
}
