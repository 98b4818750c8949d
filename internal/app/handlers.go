package app

import (
	"github.com/nutrilog/nutrilog-backend/internal/handlers"
	"github.com/nutrilog/nutrilog-backend/internal/logger"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Meal     *handlers.MealHandler
	Product  *handlers.ProductHandler
	Unit     *handlers.UnitHandler
	Analysis *handlers.AnalysisHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:     handlers.NewAuthHandler(serviceset.Auth),
		Meal:     handlers.NewMealHandler(serviceset.Meal),
		Product:  handlers.NewProductHandler(serviceset.Product),
		Unit:     handlers.NewUnitHandler(serviceset.Unit),
		Analysis: handlers.NewAnalysisHandler(serviceset.Analysis),
	}
}
