// NexusAI Gateway Server
// Multi-provider AI request router with provider settings, history and
// real-time dashboard push

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nexusai/internal/ai"
	"nexusai/internal/auth"
	"nexusai/internal/cache"
	"nexusai/internal/handlers"
	"nexusai/internal/history"
	"nexusai/internal/logging"
	"nexusai/internal/metrics"
	"nexusai/internal/middleware"
	"nexusai/internal/settings"
	"nexusai/internal/websocket"
	"nexusai/pkg/models"
)

func main() {
	// .env is optional, system environment still applies.
	_ = godotenv.Load()

	logging.Init()
	defer logging.Sync()
	log := logging.S()

	db, err := initDB()
	if err != nil {
		log.Fatalw("failed to initialize database", "error", err)
	}
	if err := runMigrations(db); err != nil {
		log.Fatalw("failed to run migrations", "error", err)
	}

	settingsStore, err := settings.NewStore(db)
	if err != nil {
		log.Fatalw("failed to initialize settings store", "error", err)
	}

	router := ai.NewRouter(settingsStore.BuildClients(), ai.DefaultRouterConfig(), logging.L())
	defer router.Stop()

	cacheLayer := cache.New(os.Getenv("REDIS_URL"), logging.L())
	defer cacheLayer.Close()

	historyStore := history.NewStore(db, cacheLayer)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Warnw("JWT_SECRET not set, using an insecure development secret")
		jwtSecret = "nexusai-dev-secret"
	}
	authService := auth.NewService(db, jwtSecret)

	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Shutdown()

	m := metrics.Get()
	router.SetFallbackHook(func(from, to ai.Provider) {
		m.AIFallbacksTotal.WithLabelValues(string(from), string(to)).Inc()
	})
	router.SetHealthHook(func(p ai.Provider, healthy bool) {
		m.SetProviderHealth(string(p), healthy)
		hub.Broadcast(websocket.Message{
			Type: websocket.MessageTypeProviderHealth,
			Data: map[string]interface{}{"provider": string(p), "healthy": healthy},
		})
	})
	go router.MonitorHealth(60 * time.Second)

	handler := handlers.NewHandler(db, router, settingsStore, historyStore, authService, hub, cacheLayer)

	engine := setupRouter(handler, authService, hub)

	srv := &http.Server{
		Addr:         ":" + getPort(),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infow("nexusai gateway starting", "port", getPort())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("forced shutdown", "error", err)
	}

	log.Info("shutdown complete")
}

func initDB() (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if os.Getenv("ENVIRONMENT") == "development" {
		logLevel = gormlogger.Info
	}
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)}

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" && (strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")) {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return db, nil
	}

	// Local development default: embedded SQLite file.
	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = "nexusai.db"
	}
	return gorm.Open(sqlite.Open(path), cfg)
}

func runMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ProviderCredential{},
		&models.Preference{},
		&models.Conversation{},
		&models.Memory{},
	)
}

func setupRouter(handler *handlers.Handler, authService *auth.Service, hub *websocket.Hub) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.Use(metrics.GinMiddleware())
	engine.Use(middleware.RateLimit(20, 40))

	config := cors.DefaultConfig()
	if originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS"); originsEnv != "" {
		config.AllowOrigins = strings.Split(originsEnv, ",")
	} else {
		config.AllowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		}
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	config.AllowCredentials = true
	engine.Use(cors.New(config))

	engine.GET("/health", handler.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", handler.Register)
			authGroup.POST("/login", handler.Login)
			authGroup.POST("/refresh", handler.Refresh)
			authGroup.GET("/me", middleware.RequireAuth(authService), handler.Me)
		}

		protected := v1.Group("")
		protected.Use(middleware.RequireAuth(authService))
		{
			protected.POST("/process", handler.Process)

			protected.GET("/providers", handler.ListProviders)
			protected.PUT("/providers/:provider", handler.ConfigureProvider)
			protected.POST("/providers/:provider/test", handler.TestProvider)

			protected.GET("/usage", handler.GetUsage)
			protected.GET("/history", handler.GetHistory)
			protected.GET("/memories", handler.GetMemories)

			protected.GET("/settings", handler.GetSettings)
			protected.PUT("/settings", handler.UpdateSettings)
			protected.POST("/settings/reset", handler.ResetSettings)
			protected.DELETE("/settings", handler.ResetSettings)
		}

		v1.GET("/ws", middleware.RequireAuth(authService), hub.HandleWebSocket)
	}

	return engine
}

func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return port
}
