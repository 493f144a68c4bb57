package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-chat/config"
	"support-chat/internal/handler"
	"support-chat/internal/middleware"
	"support-chat/internal/redis"
	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"
	"support-chat/internal/websocket"
	"support-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
	WS           *websocket.Handler
}

type Dependencies struct {
	Auth    *services.AuthService
	Redis   *goredis.Client
	Limiter *redis.RateLimiter
	Pool    *pgxpool.Pool
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, deps *Dependencies) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))
	s.engine.Use(middleware.RateLimitMiddleware(deps.Limiter))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := deps.Pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	identified := middleware.IdentityMiddleware(deps.Auth, deps.Redis)

	auth := s.engine.Group("/v1/auth")
	{
		auth.POST("/signup", handlers.Auth.SignUp)
		auth.POST("/signin", handlers.Auth.SignIn)
		auth.POST("/signout", handlers.Auth.SignOut)
		auth.GET("/me", identified, handlers.Auth.Me)
	}

	messages := s.engine.Group("/v1/messages", identified)
	{
		messages.GET("", handlers.Message.List)
		messages.POST("", middleware.MessageRateLimitMiddleware(deps.Limiter), handlers.Message.Send)
		messages.PATCH("/:id/status", handlers.Message.UpdateStatus)
		messages.POST("/read", handlers.Message.MarkRead)
	}

	conversations := s.engine.Group("/v1/conversations", identified, middleware.RequireAdmin())
	{
		conversations.GET("", handlers.Conversation.List)
		conversations.POST("/:actorId/read", handlers.Conversation.MarkRead)
	}

	s.engine.GET("/ws", identified, handlers.WS.Connect)
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
