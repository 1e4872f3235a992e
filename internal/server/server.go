// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"workroom/internal/cache"
	"workroom/internal/config"
	"workroom/internal/database"
	"workroom/internal/middleware"
	"workroom/internal/models"
	"workroom/internal/notifications"
	"workroom/internal/observability"
	"workroom/internal/repository"
	"workroom/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo       repository.UserRepository
	wsRepo         repository.WorkspaceRepository
	convRepo       repository.ConversationRepository
	msgRepo        repository.MessageRepository
	annotationRepo repository.AnnotationRepository

	notifier *notifications.Notifier
	hub      *notifications.Hub

	conversationService *service.ConversationService
	messageService      *service.MessageService
	annotationService   *service.AnnotationService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests and the bootstrap layer use this to inject DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	wsRepo := repository.NewWorkspaceRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	annotationRepo := repository.NewAnnotationRepository(db)

	prom := observability.InitMetrics("workroom-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       userRepo,
		wsRepo:         wsRepo,
		convRepo:       convRepo,
		msgRepo:        msgRepo,
		annotationRepo: annotationRepo,
		hub:            notifications.NewHub(),
	}

	postProc := service.NewPostProcessor(annotationRepo, userRepo, wsRepo)
	server.conversationService = service.NewConversationService(convRepo, wsRepo, userRepo, db)
	server.messageService = service.NewMessageService(msgRepo, convRepo, wsRepo, userRepo, db, postProc)
	server.annotationService = service.NewAnnotationService(annotationRepo, msgRepo, convRepo)

	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
	} else {
		// Single-instance mode: events still flow through the local hub.
		server.notifier = notifications.NewNotifier(nil)
	}

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context middleware to propagate request ID and user ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	// Security headers
	app.Use(helmet.New())

	// Structured request logging (after requestid and context middleware)
	app.Use(middleware.RequestLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter) so
	// browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they are handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Workroom Metrics Dashboard",
	}))

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired)

	// Workspace-scoped conversation registry
	workspaces := protected.Group("/workspaces/:workspaceId")
	workspaces.Get("/conversations", s.GetSidebar)
	workspaces.Post("/conversations/groups", s.CreateGroup)
	workspaces.Get("/conversations/flow/:flowId", s.ResolveFlowConversation)
	workspaces.Get("/conversations/clients/:clientId/:channel", s.ResolveClientConversation)
	workspaces.Get("/conversations/direct/:userId", s.ResolveDirectConversation)

	// Conversation routes
	conversations := protected.Group("/conversations")
	// Define specific /:id/:resource routes BEFORE generic /:id route
	conversations.Get("/:id/messages", s.GetMessages)
	conversations.Post("/:id/messages", middleware.RateLimit(
		s.redis, 30, time.Minute, "send_message"), s.SendMessage)
	conversations.Get("/:id/messages/since", s.GetMessagesSince)
	conversations.Post("/:id/delivered", s.MarkConversationDelivered)
	conversations.Post("/:id/join", s.JoinGroup)
	conversations.Post("/:id/leave", s.LeaveGroup)
	conversations.Get("/:id/notifications", s.GetNotificationSetting)
	conversations.Put("/:id/notifications", s.UpdateNotificationSetting)
	conversations.Get("/:id/media", s.GetMediaGallery)
	conversations.Get("/:id/starred", s.GetStarredMessages)
	conversations.Get("/:id/pinned", s.GetPinnedMessages)
	// Generic /:id route must be last
	conversations.Get("/:id", s.GetConversation)

	// Message routes
	messages := protected.Group("/messages")
	messages.Post("/:id/delivered", s.AcknowledgeDelivered)
	messages.Post("/:id/read", s.MarkMessageRead)
	messages.Get("/:id/read-by", s.GetReadBy)
	messages.Post("/:id/reactions", s.ToggleReaction)
	messages.Get("/:id/reactions", s.GetReactions)
	messages.Put("/:id/star", s.SetStarred)
	messages.Put("/:id/pin", s.SetPinned)
	messages.Delete("/:id", s.DeleteMessage)

	// Mentions inbox
	protected.Get("/mentions", s.GetMentionsInbox)

	// WebSocket endpoint
	ws := api.Group("/ws", middleware.WebSocketAuthRequired)
	ws.Get("/chat", s.WebSocketChatHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Workroom Messaging API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	// Bridge cross-instance events from Redis into the local hub.
	go func() {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			log.Printf("failed to start hub wiring: %v", err)
		}
	}()

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down hub: %v", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
