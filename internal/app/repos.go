package app

import (
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
)

type Repos struct {
	User            repos.UserRepo
	Meal            repos.MealRepo
	Product         repos.ProductRepo
	UnitDefinition  repos.UnitDefinitionRepo
	AnalysisRun     repos.AnalysisRunRepo
	AnalysisRunItem repos.AnalysisRunItemRepo
	AICallLog       repos.AICallLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:            repos.NewUserRepo(db, log),
		Meal:            repos.NewMealRepo(db, log),
		Product:         repos.NewProductRepo(db, log),
		UnitDefinition:  repos.NewUnitDefinitionRepo(db, log),
		AnalysisRun:     repos.NewAnalysisRunRepo(db, log),
		AnalysisRunItem: repos.NewAnalysisRunItemRepo(db, log),
		AICallLog:       repos.NewAICallLogRepo(db, log),
	}
}
