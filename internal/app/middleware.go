package app

import (
	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/middleware"
)

type Middleware struct {
	Auth *middleware.AuthMiddleware
}

func wireMiddleware(log *logger.Logger, serviceset Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: middleware.NewAuthMiddleware(log, serviceset.Auth),
	}
}
