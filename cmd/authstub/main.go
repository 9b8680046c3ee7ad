package main

import (
	"context"

	"github.com/rryowa/sessiongate/internal/api"
	"github.com/rryowa/sessiongate/internal/controller"
	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/service"
	"github.com/rryowa/sessiongate/internal/storage"
	"github.com/rryowa/sessiongate/internal/storage/memory"
	"github.com/rryowa/sessiongate/internal/storage/redis"
	"github.com/rryowa/sessiongate/internal/util"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()

	var blocklist storage.TokenBlocklist = memory.NewTokenStorage()
	if addr := util.GetRedisAddr(); addr != "" {
		redisClient, redisCleanup, err := util.NewRedisClient(logger, addr)
		if err != nil {
			logger.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisCleanup()
		blocklist = redis.NewTokenStorage(redisClient)
	}

	var keys []models.APIKey
	if key := util.GetServiceAPIKey(); key != "" {
		keys = append(keys, models.APIKey{Key: service.HashAPIKey(key), ClientID: "sessiongate"})
	}
	apiKeyRepository := memory.NewAPIKeyRepository(keys...)
	apiKeyService := service.NewAPIKeyService(apiKeyRepository, logger, !apiKeyRepository.Empty())

	tokenService := service.NewTokenService(util.NewTokenConfig(), memory.NewSessionRepository(logger), blocklist)
	authService := service.NewAuthService(memory.NewUserRepository(), tokenService, logger)
	if err := authService.Seed(ctx, service.DefaultAccounts...); err != nil {
		logger.Fatalw("failed to seed accounts", "error", err)
	}

	c := controller.NewController(logger, authService)

	apiServer, err := api.NewAPI(c, authService, apiKeyService, util.NewServerConfig(), util.NewRateLimiterConfig(), logger)
	if err != nil {
		logger.Fatalw("failed to build API", "error", err)
	}
	apiServer.Run(ctx)
}
