package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/studyhive/studyhive/config"
	"github.com/studyhive/studyhive/internal/api"
	"github.com/studyhive/studyhive/internal/handler"
	"github.com/studyhive/studyhive/internal/pkg/events"
	"github.com/studyhive/studyhive/internal/pkg/redis"
	"github.com/studyhive/studyhive/internal/repository"
	"github.com/studyhive/studyhive/internal/service"
	"github.com/studyhive/studyhive/internal/storage"
	"github.com/studyhive/studyhive/middleware/jwt"
	"github.com/studyhive/studyhive/middleware/log"
	"github.com/studyhive/studyhive/pkg/workerpool"
	"github.com/studyhive/studyhive/utils/ratelimit"
	"github.com/studyhive/studyhive/utils/snowflake"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config file")
	workerID := flag.Int64("worker-id", 0, "snowflake worker id, unique per instance")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer appLogger.Sync()

	db, err := storage.InitPostgres(&cfg.Postgres)
	if err != nil {
		appLogger.Fatal("failed to init postgres: " + err.Error())
	}

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		appLogger.Fatal("failed to init redis: " + err.Error())
	}
	defer redisClient.Close()

	pool := workerpool.New(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appLogger.Logger)
	defer pool.Stop()

	// Events degrade to a no-op publisher when Kafka is disabled or down;
	// the core never depends on broker availability.
	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		publisher, err = events.NewPublisher(&cfg.Kafka, pool, appLogger.Logger)
		if err != nil {
			appLogger.Warn("kafka unavailable, events disabled: " + err.Error())
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	idGen, err := snowflake.NewGenerator(*workerID)
	if err != nil {
		appLogger.Fatal("failed to init id generator: " + err.Error())
	}

	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	guard := service.NewAccessGuard(groupRepo, membershipRepo)
	groupService := service.NewGroupService(groupRepo, membershipRepo, guard, publisher, appLogger)
	membershipService := service.NewMembershipService(groupRepo, membershipRepo, userRepo, guard, redisClient, publisher, appLogger)
	messageService := service.NewMessageService(messageRepo, membershipRepo, userRepo, guard, idGen, publisher, appLogger)

	groupHandler := handler.NewGroupHandler(groupService)
	membershipHandler := handler.NewMembershipHandler(membershipService)
	messageHandler := handler.NewMessageHandler(messageService)

	tokenManager := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	rateLimiter := ratelimit.NewWindowLimiter(redisClient.GetClient(), appLogger.Logger, true)
	mw := api.NewMiddlewareManager(tokenManager, userRepo, rateLimiter, appLogger, &cfg.RateLimit)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	api.RegisterRoutes(r, mw, groupHandler, membershipHandler, messageHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	appLogger.Info("starting server on " + addr)
	if err := r.Run(addr); err != nil {
		appLogger.Fatal("server stopped: " + err.Error())
	}
}
