package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a canonical food reference with an authoritative per-100g
// macro profile.
type Product struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Name   string    `gorm:"not null;index" json:"name"`
	Brand  string    `gorm:"column:brand" json:"brand,omitempty"`

	CaloriesPer100g decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"calories_per_100g"`
	ProteinPer100g  decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"protein_per_100g"`
	FatPer100g      decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"fat_per_100g"`
	CarbsPer100g    decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"carbs_per_100g"`

	Portions []ProductPortion `gorm:"foreignKey:ProductID" json:"portions,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Product) TableName() string { return "product" }

// ProductPortion names a household measure of a product ("slice", "cup")
// with its normalized mass.
type ProductPortion struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Name        string          `gorm:"not null" json:"name"`
	WeightGrams decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"weight_grams"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ProductPortion) TableName() string { return "product_portion" }
