package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnitDefinition maps a source unit ("tbsp", "cup") to grams.
type UnitDefinition struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Code         string          `gorm:"uniqueIndex;not null" json:"code"`
	Name         string          `gorm:"not null" json:"name"`
	GramsPerUnit decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"grams_per_unit"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (UnitDefinition) TableName() string { return "unit_definition" }
