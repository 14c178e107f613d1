package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetwatch/internal/cache"
	"fleetwatch/internal/config"
	"fleetwatch/internal/handlers"
	"fleetwatch/internal/logging"
	"fleetwatch/internal/middleware"
	"fleetwatch/internal/repository"
	"fleetwatch/internal/service"
	"fleetwatch/internal/worker"
	"fleetwatch/pkg/database"
	pkgredis "fleetwatch/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	format := cfg.Log.Format
	if cfg.App.Debug {
		format = "console"
	}
	logging.Init(cfg.Log.Level, format)

	if envErr != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Str("port", cfg.App.Port).Msg("fleetwatch server starting")

	db, err := database.ConnectWithRetry(database.Config{
		Driver:          cfg.DB.Driver,
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		User:            cfg.DB.User,
		Password:        cfg.DB.Password,
		DBName:          cfg.DB.DBName,
		SSLMode:         cfg.DB.SSLMode,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		Debug:           cfg.App.Debug,
	}, cfg.DB.ConnectAttempts, cfg.DB.ConnectDelay)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	var gpsCache cache.Cache = cache.Noop{}
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.Connect(pkgredis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, caching disabled")
		} else {
			defer redisClient.Close()
			gpsCache = cache.NewRedisCache(redisClient)
		}
	}

	gpsRepo := repository.NewGPSRepository(db)
	userRepo := repository.NewUserRepository(db)

	gpsService := service.NewGPSService(gpsRepo, gpsCache, service.GPSServiceConfig{
		CacheTTL:      cfg.Cache.TTL,
		ExportMaxRows: cfg.Export.MaxRows,
	})
	authService := service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userService := service.NewUserService(userRepo)

	scheduler := worker.NewScheduler()
	if cfg.Workers.ActivityEnabled {
		scheduler.AddWorker(worker.NewDeviceActivityWorker(gpsService, cfg.Workers.ActivityInterval))
	}
	go scheduler.Start()
	defer scheduler.Stop()

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	rt := handlers.Router{
		GPS:             handlers.NewGPSHandler(gpsService),
		Auth:            handlers.NewAuthHandler(authService),
		Users:           handlers.NewUserHandler(userService),
		Health:          handlers.NewHealthHandler(db, redisClient, gpsService, cfg.Workers.ActivityEnabled),
		Tokens:          authService,
		Limiter:         middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst),
		DeviceKeyHeader: cfg.Device.KeyHeader,
		DeviceKey:       cfg.Device.APIKey,
	}

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", cfg.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", cfg.Device.KeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	rt.Install(r)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
