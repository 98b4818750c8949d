package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/types"
	"github.com/nutrilog/nutrilog-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "nutrilog", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := gormDB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gormDB, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
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
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	// One active run per meal; the pre-check in the service reports the
	// blocking run, this index closes the insert race.
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS "uniq_analysis_run_active"
		ON "analysis_run" ("meal_id")
		WHERE "status" IN ('queued', 'running') AND "meal_id" IS NOT NULL
	`).Error; err != nil {
		s.log.Error("Failed to create active-run unique index", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		table, name, column, refTable, refColumn, onDelete string
	}{
		{"meal", "fk_meal_user_id", "user_id", "user", "id", "CASCADE"},
		{"product", "fk_product_user_id", "user_id", "user", "id", "CASCADE"},
		{"product_portion", "fk_product_portion_product_id", "product_id", "product", "id", "CASCADE"},
		{"analysis_run", "fk_analysis_run_user_id", "user_id", "user", "id", "CASCADE"},
		{"analysis_run", "fk_analysis_run_meal_id", "meal_id", "meal", "id", "SET NULL"},
		{"analysis_run_item", "fk_analysis_run_item_run_id", "run_id", "analysis_run", "id", "CASCADE"},
	}
	for _, fk := range constraints {
		stmt := fmt.Sprintf(`
			ALTER TABLE %q
			ADD CONSTRAINT %q
			FOREIGN KEY (%q)
			REFERENCES %q(%q)
			ON DELETE %s
		`, fk.table, fk.name, fk.column, fk.refTable, fk.refColumn, fk.onDelete)
		if err := s.db.Exec(stmt).Error; err != nil {
			// Re-running migrations against an existing schema hits
			// duplicate constraints; that is fine.
			s.log.Debug("Skipping foreign key constraint", "name", fk.name, "error", err)
		}
	}
	return nil
}
