//go:build !devauth

package main

import (
	"log/slog"

	"github.com/bigkaa/objektpro/internal/api/middleware"
	"github.com/bigkaa/objektpro/internal/config"
	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/token"
)

// newGuard — проверка подписанного Bearer-токена.
func newGuard(cfg *config.Config, _ *model.User, logger *slog.Logger) middleware.Guard {
	logger.Info("Аутентификация по токенам",
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("ttl", cfg.JWTTTL.String()),
	)
	return middleware.NewTokenGuard(token.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, 0), logger)
}
