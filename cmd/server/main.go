package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kinship-app/backend/internal/auth"
	"github.com/kinship-app/backend/internal/cache"
	"github.com/kinship-app/backend/internal/calls"
	"github.com/kinship-app/backend/internal/config"
	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/feed"
	"github.com/kinship-app/backend/internal/geo"
	"github.com/kinship-app/backend/internal/handlers"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/middleware"
	"github.com/kinship-app/backend/internal/notify"
	"github.com/kinship-app/backend/internal/push"
	"github.com/kinship-app/backend/internal/storage"
	"github.com/kinship-app/backend/internal/tracking"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Close()

	if cfg.JWTSecret == "" {
		logger.Log.Fatal("JWT_SECRET is required")
	}

	if err := database.Initialize(cfg.DatabaseURL); err != nil {
		logger.Log.Fatal("database initialization failed", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("database migration failed", zap.Error(err))
	}

	// Redis is optional; the feed degrades to DB-only evergreen lookups
	var redisClient *cache.RedisClient
	if cfg.RedisHost != "" {
		client, err := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			logger.Log.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	var mediaStore storage.MediaStore
	if cfg.AWSBucket != "" {
		s3Store, err := storage.NewS3Store(cfg.AWSRegion, cfg.AWSBucket, cfg.CDNBaseURL)
		if err != nil {
			logger.Log.Warn("S3 unavailable, media uploads disabled", zap.Error(err))
		} else {
			mediaStore = s3Store
		}
	}

	var geoClient geo.Lookuper
	if cfg.GeoAPIBaseURL != "" {
		geoClient = geo.NewClient(cfg.GeoAPIBaseURL)
	}

	var transport push.Transport
	if cfg.PushServerKey != "" {
		transport = push.NewClient(cfg.PushGatewayURL, cfg.PushServerKey)
	} else {
		logger.Log.Warn("push gateway key missing, using in-memory fake transport")
		transport = push.NewFakeTransport()
	}

	authService := auth.NewService([]byte(cfg.JWTSecret), geoClient)
	feedService := feed.NewService(database.DB, redisClient)
	notifyService := notify.NewService(database.DB, transport)
	trackingService := tracking.NewService(database.DB)
	tokenIssuer := calls.NewHMACIssuer(cfg.RTCAppID, cfg.RTCAppSecret, cfg.RTCTokenTTL)
	callService := calls.NewService(database.DB, tokenIssuer, notifyService)

	scheduler := notify.NewScheduler(database.DB, notifyService,
		cfg.NotificationSweepInterval, cfg.SessionIdleWindow)
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.GinLoggerMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	h := handlers.New(authService, feedService, notifyService, trackingService, callService, mediaStore)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("forced shutdown", zap.Error(err))
	}
}
