package app

import (
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/services"
)

type Services struct {
	Auth     services.AuthService
	Meal     services.MealService
	Product  services.ProductService
	Unit     services.UnitService
	Analysis services.AnalysisService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) Services {
	log.Info("Wiring services...")

	authService := services.NewAuthService(db, log, reposet.User, cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	mealService := services.NewMealService(db, log, reposet.Meal)
	productService := services.NewProductService(db, log, reposet.Product)
	unitService := services.NewUnitService(db, log, reposet.UnitDefinition)

	verifier := services.NewIngredientVerifier(log, reposet.Product, cfg.MacroTolerancePct)
	processor := services.NewAnalysisProcessor(
		db,
		log,
		reposet.AnalysisRun,
		reposet.AnalysisRunItem,
		reposet.Meal,
		reposet.Product,
		reposet.AICallLog,
		verifier,
		clients.OpenAI,
		services.AIPricing{
			PromptPer1K:     cfg.PromptPricePer1K,
			CompletionPer1K: cfg.CompletionPricePer1K,
			Currency:        cfg.PriceCurrency,
		},
		clients.Events,
	)
	analysisService := services.NewAnalysisService(
		db,
		log,
		reposet.AnalysisRun,
		reposet.AnalysisRunItem,
		reposet.Meal,
		processor,
		clients.Events,
		cfg.OpenAIModel,
		cfg.DefaultMatchThreshold,
	)

	return Services{
		Auth:     authService,
		Meal:     mealService,
		Product:  productService,
		Unit:     unitService,
		Analysis: analysisService,
	}
}
