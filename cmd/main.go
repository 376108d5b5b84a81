package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/krezhik/marketauth/internal/api"
	"github.com/krezhik/marketauth/internal/controller"
	"github.com/krezhik/marketauth/internal/migrations"
	"github.com/krezhik/marketauth/internal/service"
	"github.com/krezhik/marketauth/internal/storage/postgres"
	"github.com/krezhik/marketauth/internal/storage/redis"
	"github.com/krezhik/marketauth/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := util.NewZapLogger()

	db, dbCleanup, err := util.NewDBConnection(logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	if err := migrations.RunMigrations(db, logger, "./internal/migrations"); err != nil {
		logger.Fatal(zap.Error(err))
	}

	redisClient, redisCleanup, err := util.NewRedisClient(ctx, logger, util.NewRedisConfig())
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	cleanupFuncs := []func(){dbCleanup, redisCleanup}

	storage := postgres.NewStorage(db)
	cache := redis.NewBlacklistCache(redisClient)

	secrets := util.NewSecretConfig()
	blacklistService := service.NewBlacklistService(secrets, storage, cache, logger)
	sessionService := service.NewSessionService(util.NewSessionConfig(), secrets, storage, blacklistService, logger)
	tokenService := service.NewTokenService(util.NewTokenConfig(), storage, blacklistService, sessionService, logger)

	scheduler := service.NewCleanupScheduler(util.NewCleanupConfig(), tokenService, sessionService, blacklistService, logger)
	go scheduler.Run(ctx)

	controller := controller.NewController(logger, tokenService, sessionService)

	apiServer := api.NewAPI(controller, logger, util.NewServerConfig(), cleanupFuncs)
	apiServer.Run(ctx)
}
