package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/solswap/swap-api/internal/auth"
	"github.com/solswap/swap-api/internal/config"
	"github.com/solswap/swap-api/internal/database"
	"github.com/solswap/swap-api/internal/events"
	"github.com/solswap/swap-api/internal/orders"
	"github.com/solswap/swap-api/internal/queue"
	"github.com/solswap/swap-api/internal/router"
	"github.com/solswap/swap-api/internal/stream"
	"github.com/solswap/swap-api/internal/worker"
	"github.com/solswap/swap-api/pkg/middleware"
)

const queueCapacity = 1024

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the swap order API server with graceful
// shutdown support. All services are constructed here and passed by
// reference; there are no package-level singletons.
func main() {
	cfg := config.Load()

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Core services
	bus := events.NewBus()
	submissionQueue := queue.NewQueue(db, queueCapacity)
	orderService := orders.NewService(db, bus)

	venues := router.DefaultVenues(cfg.QuoteDelay, cfg.ExecutionDelay, cfg.VenueFailureRate)
	venueRouter := router.New("Raydium", venues...)

	executor := worker.NewExecutor(orderService, venueRouter, worker.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Multiplier:  2,
	})
	pool := worker.NewPool(executor, submissionQueue, cfg.WorkerConcurrency)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	pool.Start(workerCtx)

	// Re-dispatch tasks left unfinished by a previous process
	if _, err := submissionQueue.RecoverPending(); err != nil {
		zlog.Error().Err(err).Msg("Failed to recover pending queue tasks")
	}

	// Handlers
	authService := auth.NewService(cfg.JWTSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)
	authHandlers := auth.NewGinHandlers(authService)
	orderHandlers := orders.NewGinHandlers(orderService, submissionQueue, executor)
	streamHandlers := stream.NewGinHandlers(orderService, bus)

	// Initialize router
	engine := gin.Default()
	engine.Use(middleware.RateLimit())
	engine.GET("/health", healthHandler(db))
	setupRoutes(engine, cfg.JWTSecret, authHandlers, orderHandlers, streamHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Shutdown order: stop HTTP intake, then the queue, give in-flight
	// tasks a grace period, then tear down subscriptions and storage.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Server forced to shutdown")
	}

	submissionQueue.Close()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		zlog.Warn().Msg("Worker grace period expired, abandoning in-flight tasks")
		workerCancel()
		<-done
	}

	bus.Close()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	zlog.Info().Msg("Server exiting")
}

// healthHandler reports process liveness and database connectivity.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Exec("SELECT 1").Error; err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "degraded",
				"database": "disconnected",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"database": "connected",
		})
	}
}

// setupRoutes configures all API endpoints and their handlers.
// - Auth routes: public endpoints for token generation
// - Order routes: protected by JWT authentication
// - Stream routes: WebSocket live status, token passed at upgrade
// - Internal routes: protected by internal network authentication
func setupRoutes(
	engine *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	streamHandlers *stream.GinHandlers,
) {
	v1 := engine.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		ordersGroup := v1.Group("/orders")
		ordersGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			ordersGroup.POST("", orderHandlers.CreateOrderHandler())
			ordersGroup.POST("/execute", orderHandlers.CreateAndExecuteOrderHandler())
			ordersGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
		}

		wallets := v1.Group("/wallets")
		wallets.Use(middleware.JWTAuth(jwtSecret))
		{
			wallets.GET("/:wallet/orders", orderHandlers.ListWalletOrdersHandler())
		}

		// Live status stream (browsers cannot set headers on WebSocket
		// upgrade, so the stream route is left open)
		ws := v1.Group("/ws")
		{
			ws.GET("/orders/:order_id", streamHandlers.OrderStatusHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/execution/:order_id", orderHandlers.ExecuteOrderHandler())
		}
	}
}
