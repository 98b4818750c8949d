package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AnalysisRunItem is one ingredient line produced by a run. Items are
// created once by the processor and never mutated; they cascade with the run.
type AnalysisRunItem struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RunID uuid.UUID `gorm:"type:uuid;not null;index:idx_run_item_ordinal,unique" json:"run_id"`

	Ordinal int    `gorm:"column:ordinal;not null;index:idx_run_item_ordinal,unique" json:"ordinal"`
	RawName string `gorm:"column:raw_name;not null" json:"raw_name"`
	RawUnit string `gorm:"column:raw_unit" json:"raw_unit"`

	Quantity decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"quantity"`

	ProductID        *uuid.UUID `gorm:"type:uuid;index" json:"product_id,omitempty"`
	ProductPortionID *uuid.UUID `gorm:"type:uuid" json:"product_portion_id,omitempty"`
	UnitDefinitionID *uuid.UUID `gorm:"type:uuid" json:"unit_definition_id,omitempty"`

	WeightGrams decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"weight_grams"`
	Confidence  decimal.Decimal `gorm:"type:numeric(5,4);not null" json:"confidence"`

	// Macros already scaled to WeightGrams.
	Calories decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"calories"`
	Protein  decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"protein"`
	Fat      decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"fat"`
	Carbs    decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"carbs"`

	NeedsReview        bool           `gorm:"column:needs_review;not null;default:false" json:"needs_review"`
	VerificationIssues datatypes.JSON `gorm:"type:jsonb;column:verification_issues" json:"verification_issues,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AnalysisRunItem) TableName() string { return "analysis_run_item" }
