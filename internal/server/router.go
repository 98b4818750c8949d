package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nutrilog/nutrilog-backend/internal/handlers"
	"github.com/nutrilog/nutrilog-backend/internal/middleware"
)

type RouterConfig struct {
	AllowOrigins    []string
	AuthHandler     *handlers.AuthHandler
	AuthMiddleware  *middleware.AuthMiddleware
	AnalysisHandler *handlers.AnalysisHandler
	MealHandler     *handlers.MealHandler
	ProductHandler  *handlers.ProductHandler
	UnitHandler     *handlers.UnitHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	allowOrigins := cfg.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.AuthHandler.Refresh)

	// Protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		// Analysis runs
		api.POST("/analysis-runs", cfg.AnalysisHandler.CreateRun)
		api.GET("/analysis-runs", cfg.AnalysisHandler.ListRuns)
		api.GET("/analysis-runs/:id", cfg.AnalysisHandler.GetRun)
		api.GET("/analysis-runs/:id/items", cfg.AnalysisHandler.GetRunItems)
		api.POST("/analysis-runs/:id/retry", cfg.AnalysisHandler.RetryRun)
		api.POST("/analysis-runs/:id/cancel", cfg.AnalysisHandler.CancelRun)

		// Meals
		api.POST("/meals", cfg.MealHandler.CreateMeal)
		api.GET("/meals", cfg.MealHandler.ListMeals)
		api.GET("/meals/:id", cfg.MealHandler.GetMeal)
		api.DELETE("/meals/:id", cfg.MealHandler.DeleteMeal)

		// Products
		api.POST("/products", cfg.ProductHandler.CreateProduct)
		api.GET("/products", cfg.ProductHandler.ListProducts)
		api.GET("/products/:id", cfg.ProductHandler.GetProduct)

		// Units
		api.POST("/units", cfg.UnitHandler.CreateUnit)
		api.GET("/units", cfg.UnitHandler.ListUnits)
	}

	return router
}
