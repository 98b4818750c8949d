package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
)

const (
	IssueMissingProductReference = "missing_product_reference"
	IssueMacroDeltaExceeded      = "macro_delta_exceeded"
)

// IngredientCandidate is one model-proposed ingredient with an estimated
// mass and a claimed macro profile, already scaled to WeightGrams.
type IngredientCandidate struct {
	// UserID scopes the product lookup to the run owner's catalog.
	UserID      uuid.UUID
	Name        string
	Quantity    decimal.Decimal
	Unit        string
	WeightGrams decimal.Decimal
	Confidence  decimal.Decimal
	ProductID   *uuid.UUID

	Calories decimal.Decimal
	Protein  decimal.Decimal
	Fat      decimal.Decimal
	Carbs    decimal.Decimal
}

// MacroDelta reports the claimed-vs-expected difference for one macro.
// PctDiff is nil when the expected value is zero (percentage is not
// applicable, never NaN).
type MacroDelta struct {
	Macro    string           `json:"macro"`
	Expected decimal.Decimal  `json:"expected"`
	Claimed  decimal.Decimal  `json:"claimed"`
	Diff     decimal.Decimal  `json:"diff"`
	PctDiff  *decimal.Decimal `json:"pct_diff,omitempty"`
	Exceeded bool             `json:"exceeded"`
}

// VerificationResult always carries the computed deltas, even when every
// macro is within tolerance.
type VerificationResult struct {
	Deltas      []MacroDelta `json:"deltas"`
	Issues      []string     `json:"issues"`
	NeedsReview bool         `json:"needs_review"`
}

type IngredientVerifier interface {
	Verify(ctx context.Context, candidate IngredientCandidate) (VerificationResult, error)
}

type ingredientVerifier struct {
	log         *logger.Logger
	productRepo repos.ProductRepo

	// tolerancePct is the exclusive flag boundary: a deviation of exactly
	// tolerancePct percent is accepted.
	tolerancePct decimal.Decimal
}

func NewIngredientVerifier(log *logger.Logger, productRepo repos.ProductRepo, tolerancePct decimal.Decimal) IngredientVerifier {
	return &ingredientVerifier{
		log:          log.With("service", "IngredientVerifier"),
		productRepo:  productRepo,
		tolerancePct: tolerancePct,
	}
}

func (v *ingredientVerifier) Verify(ctx context.Context, candidate IngredientCandidate) (VerificationResult, error) {
	if candidate.ProductID == nil {
		return VerificationResult{
			Issues:      []string{IssueMissingProductReference},
			NeedsReview: true,
		}, nil
	}

	product, err := v.productRepo.GetOwnedByID(ctx, nil, candidate.UserID, *candidate.ProductID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Dangling or foreign reference: same manual-review path as no
		// reference at all.
		return VerificationResult{
			Issues:      []string{IssueMissingProductReference},
			NeedsReview: true,
		}, nil
	}
	if err != nil {
		return VerificationResult{}, err
	}

	scale := candidate.WeightGrams.Div(decimal.NewFromInt(100))
	result := VerificationResult{
		Deltas: []MacroDelta{
			v.macroDelta("calories", product.CaloriesPer100g.Mul(scale), candidate.Calories),
			v.macroDelta("protein", product.ProteinPer100g.Mul(scale), candidate.Protein),
			v.macroDelta("fat", product.FatPer100g.Mul(scale), candidate.Fat),
			v.macroDelta("carbs", product.CarbsPer100g.Mul(scale), candidate.Carbs),
		},
	}
	for _, delta := range result.Deltas {
		if delta.Exceeded {
			result.Issues = append(result.Issues, IssueMacroDeltaExceeded)
			result.NeedsReview = true
			break
		}
	}
	return result, nil
}

func (v *ingredientVerifier) macroDelta(macro string, expected, claimed decimal.Decimal) MacroDelta {
	delta := MacroDelta{
		Macro:    macro,
		Expected: expected,
		Claimed:  claimed,
		Diff:     claimed.Sub(expected),
	}
	if expected.IsZero() {
		// Percentage is undefined against a zero expectation.
		return delta
	}
	pct := delta.Diff.Div(expected).Mul(decimal.NewFromInt(100))
	delta.PctDiff = &pct
	delta.Exceeded = pct.Abs().GreaterThan(v.tolerancePct)
	return delta
}
