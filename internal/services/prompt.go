package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nutrilog/nutrilog-backend/internal/types"
)

const analysisSchemaName = "meal_analysis"

const analysisSystemPrompt = `You are a nutrition analysis assistant. Given a meal description, break it
down into individual ingredients. For each ingredient estimate the quantity
in its source unit, the total mass in grams, and the macros (calories,
protein, fat, carbs) for that mass. When the ingredient clearly matches one
of the catalog products provided by the user, set product_id to that
product's id and report your matching confidence in [0,1]; otherwise leave
product_id empty and report the confidence of your own estimate.`

// buildAnalysisUserPrompt renders the meal text plus the caller's product
// catalog so the model can link ingredients to canonical references.
func buildAnalysisUserPrompt(inputText string, catalog []*types.Product, threshold decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meal description:\n%s\n", strings.TrimSpace(inputText))
	fmt.Fprintf(&b, "\nOnly link a product when your confidence is at least %s.\n", threshold.String())
	if len(catalog) == 0 {
		b.WriteString("\nProduct catalog: (empty)\n")
		return b.String()
	}
	b.WriteString("\nProduct catalog (per 100g):\n")
	for _, p := range catalog {
		fmt.Fprintf(&b, "- id=%s name=%q calories=%s protein=%s fat=%s carbs=%s\n",
			p.ID, p.Name, p.CaloriesPer100g, p.ProteinPer100g, p.FatPer100g, p.CarbsPer100g)
	}
	return b.String()
}

// analysisResponseSchema is the strict structured-output schema for one run.
func analysisResponseSchema() map[string]any {
	ingredient := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":         map[string]any{"type": "string"},
			"quantity":     map[string]any{"type": "number"},
			"unit":         map[string]any{"type": "string"},
			"weight_grams": map[string]any{"type": "number"},
			"confidence":   map[string]any{"type": "number"},
			"product_id":   map[string]any{"type": []string{"string", "null"}},
			"calories":     map[string]any{"type": "number"},
			"protein":      map[string]any{"type": "number"},
			"fat":          map[string]any{"type": "number"},
			"carbs":        map[string]any{"type": "number"},
		},
		"required": []string{
			"name", "quantity", "unit", "weight_grams", "confidence",
			"product_id", "calories", "protein", "fat", "carbs",
		},
		"additionalProperties": false,
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ingredients": map[string]any{
				"type":  "array",
				"items": ingredient,
			},
		},
		"required":             []string{"ingredients"},
		"additionalProperties": false,
	}
}
