package repos

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

// newTestDB opens a fresh in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	// In-memory sqlite gives every connection its own database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrapping test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&types.User{},
		&types.Meal{},
		&types.Product{},
		&types.ProductPortion{},
		&types.UnitDefinition{},
		&types.AnalysisRun{},
		&types.AnalysisRunItem{},
		&types.AICallLog{},
	)
	if err != nil {
		t.Fatalf("migrating test schema: %v", err)
	}
	return db
}

func newRepoTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("building logger: %v", err)
	}
	return log
}

func decMust(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedRun(userID uuid.UUID, mealID *uuid.UUID, status string, createdAt time.Time) *types.AnalysisRun {
	return &types.AnalysisRun{
		ID:        uuid.New(),
		UserID:    userID,
		MealID:    mealID,
		RunNo:     1,
		Status:    status,
		Threshold: decimal.RequireFromString("0.6"),
		Model:     "gpt-4o-mini",
		RawInput:  []byte(`{"input_text":"test"}`),
		CreatedAt: createdAt,
	}
}
