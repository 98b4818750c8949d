package app

import (
	"github.com/gin-gonic/gin"

	"github.com/nutrilog/nutrilog-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, middlewareset Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AllowOrigins:    cfg.AllowOrigins,
		AuthHandler:     handlerset.Auth,
		AuthMiddleware:  middlewareset.Auth,
		AnalysisHandler: handlerset.Analysis,
		MealHandler:     handlerset.Meal,
		ProductHandler:  handlerset.Product,
		UnitHandler:     handlerset.Unit,
	})
}
