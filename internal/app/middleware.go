package app

import (
	"github.com/tkoivu/threadline-backend/internal/middleware"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type Middleware struct {
	Auth *middleware.AuthMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	if cfg.AuthSecret == "" {
		log.Warn("CHAINLIT_AUTH_SECRET not set, running without authentication")
		return Middleware{}
	}
	return Middleware{
		Auth: middleware.NewAuthMiddleware(log, cfg.AuthSecret),
	}
}
