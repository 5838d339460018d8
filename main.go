package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/handler"
	"github.com/ankitkr9911/vendor-processing/middleware"
	"github.com/ankitkr9911/vendor-processing/pkg/logger"
	"github.com/ankitkr9911/vendor-processing/service"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Secrets may live in a local .env during development
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Select the store: MongoDB when configured, in-memory otherwise
	var store service.Store
	if cfg.Mongo.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoStore, err := service.NewMongoStore(ctx, &cfg.Mongo)
		cancel()
		if err != nil {
			slog.Error("failed to connect to mongo", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoStore.Close(ctx); err != nil {
				slog.Error("failed to disconnect mongo", "error", err)
			}
		}()
		store = mongoStore
		slog.Info("using mongo store", "database", cfg.Mongo.Database)
	} else {
		store = service.NewMemoryStore()
		slog.Warn("no mongo uri configured, using in-memory store")
	}

	// Initialize services
	workspace, err := service.NewWorkspaceManager(&cfg.Storage)
	if err != nil {
		slog.Error("failed to initialize workspace manager", "error", err)
		os.Exit(1)
	}
	normalizer := service.NewNormalizer(&cfg.PDF)
	mailSvc := service.NewMailService(&cfg.Mail)
	llmSvc := service.NewLLMService(&cfg.LLM)
	submitSvc := service.NewSubmitService(store, workspace)
	chatSvc := service.NewChatService(store, llmSvc, normalizer, workspace, submitSvc)
	webhookSvc := service.NewWebhookService(store, mailSvc, workspace, normalizer, &cfg.Mail)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	chatHandler := handler.NewChatHandler(chatSvc)
	webhookHandler := handler.NewWebhookHandler(webhookSvc, mailSvc)
	vendorHandler := handler.NewVendorHandler(store)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Webhook endpoints (provider-facing, signature-verified)
	router.GET("/webhooks/mail/message-created", webhookHandler.Challenge)
	router.POST("/webhooks/mail/message-created", webhookHandler.Receive)

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/chat/sessions", chatHandler.StartSession)
		api.POST("/chat/sessions/:session_id/message", chatHandler.SendMessage)
		api.POST("/chat/sessions/:session_id/upload", chatHandler.Upload)
		api.GET("/chat/sessions/:session_id/summary", chatHandler.Summary)
		api.POST("/chat/sessions/:session_id/confirm", chatHandler.Confirm)
		api.GET("/chat/sessions/:session_id/history", chatHandler.History)
	}

	// Protected operator routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.GET("/vendors", vendorHandler.List)
		protected.GET("/vendors/:id", vendorHandler.Get)
		protected.GET("/webhooks/stats", webhookHandler.Stats)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
