package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Meal struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Name   string    `gorm:"not null" json:"name"`
	Notes  string    `gorm:"column:notes" json:"notes,omitempty"`
	AteAt  time.Time `gorm:"column:ate_at;not null;index" json:"ate_at"`

	// Denormalized totals, written back best-effort after a successful
	// analysis run.
	Calories decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"calories"`
	Protein  decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"protein"`
	Fat      decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"fat"`
	Carbs    decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"carbs"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Meal) TableName() string { return "meal" }
