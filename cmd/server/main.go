package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/autotrader-api/internal/auth"
	"github.com/ksred/autotrader-api/internal/broker"
	"github.com/ksred/autotrader-api/internal/database"
	"github.com/ksred/autotrader-api/internal/ledger"
	"github.com/ksred/autotrader-api/internal/portfolio"
	"github.com/ksred/autotrader-api/internal/reconcile"
	"github.com/ksred/autotrader-api/pkg/middleware"
	"github.com/ksred/autotrader-api/pkg/response"
)

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

// main wires the order ledger, broker gateways, and the reconciliation
// supervisor, recovers watches for orders left open by a prior run, and
// serves the API until an interrupt triggers graceful shutdown.
func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "autotrader.db"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		zlog.Fatal().Msg("JWT_SECRET must be set")
	}

	// Initialize database
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Broker gateways; the simulator is available outside production for
	// end-to-end runs without real credentials
	gateways := []broker.Gateway{broker.NewKiteGateway()}
	if os.Getenv("ENV") != "production" {
		gateways = append(gateways, broker.NewSimulatedGateway())
	}
	brokerRegistry := broker.NewRegistry(gateways...)

	// Reconciliation engine
	store := ledger.NewDatabase(db)
	positions := portfolio.NewService(db, brokerRegistry)
	checker := reconcile.NewChecker(store, brokerRegistry, positions)
	supervisor := reconcile.NewSupervisor(checker, store, reconcile.DefaultConfig())
	reconcileHandlers := reconcile.NewGinHandlers(supervisor, store)

	// Re-arm watches for orders left open by a prior run
	if err := supervisor.RecoverOpenWatches(context.Background()); err != nil {
		zlog.Error().Err(err).Msg("Failed to recover open order watches")
	}

	authService := auth.NewService(db, jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)

	// Initialize router
	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(middleware.RateLimit())

	setupRoutes(router, jwtSecret, authHandlers, reconcileHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
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

	// Give outstanding requests 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop every order watch and wait for in-flight cycles to finish, so no
	// ledger writes happen after exit
	supervisor.ShutdownAll()

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// - Auth routes: Public endpoints for authentication
// - Order routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	reconcileHandlers *reconcile.GinHandlers,
) {
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.GET("/:order_id", reconcileHandlers.GetOrderHandler())
		}
	}

	// Internal routes (should be protected by internal network)
	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth(jwtSecret))
	{
		internal.GET("/reconciler/status", reconcileHandlers.StatusHandler())
		internal.POST("/reconciler/watch/:order_id", reconcileHandlers.StartWatchHandler())
	}
}
