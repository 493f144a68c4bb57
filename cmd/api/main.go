package main

import (
	"context"
	"log"

	"support-chat/config"
	"support-chat/internal/conversations"
	"support-chat/internal/domain"
	"support-chat/internal/handler"
	"support-chat/internal/realtime"
	"support-chat/internal/redis"
	"support-chat/internal/repository"
	"support-chat/internal/server"
	"support-chat/internal/services"
	"support-chat/internal/status"
	"support-chat/internal/websocket"
	"support-chat/pkg/database"
	"support-chat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	channelSvc := realtime.NewRedisChannelService(redisClient, l)

	messageRepo := repository.NewMessageRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)

	gateway := services.NewMessageGateway(messageRepo, channelSvc, l)
	authSvc := services.NewAuthService(profileRepo, redisClient, cfg)

	pipeline := status.NewPipeline(gateway, l, status.Config{})
	go pipeline.Run(ctx)

	aggregator := conversations.New(messageRepo, profileRepo, l)

	// The admin feed keeps the conversation list current between page loads.
	manager := realtime.NewManager(channelSvc, l, realtime.ManagerConfig{})
	feed := manager.OpenFeed(realtime.Handlers{
		OnInsert: func(m domain.Message) { aggregator.ApplyInsert(ctx, m) },
		OnUpdate: aggregator.ApplyUpdate,
		OnStatusChange: func(state realtime.ConnectionState) {
			l.Infof("conversation feed %s", state)
		},
	})
	defer feed.Close()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	bridge := websocket.NewRedisBridge(redisClient, hub, l)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			l.Errorf("websocket bridge stopped: %v", err)
		}
	}()

	limiter := redis.NewRateLimiter(redisClient, redis.DefaultRateLimitConfig())

	handlers := &server.Handlers{
		Auth:         handler.NewAuthHandler(authSvc, limiter),
		Message:      handler.NewMessageHandler(gateway, pipeline),
		Conversation: handler.NewConversationHandler(aggregator, gateway, pipeline),
		WS:           websocket.NewHandler(hub, channelSvc, websocket.NewChannelAuthorizer(), l),
	}
	deps := &server.Dependencies{
		Auth:    authSvc,
		Redis:   redisClient,
		Limiter: limiter,
		Pool:    pool,
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(handlers, deps)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
