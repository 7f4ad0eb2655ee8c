package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zainab-hr/ProjetProduits/internal/auth/service"
	"github.com/zainab-hr/ProjetProduits/internal/gateway/handler"
	"github.com/zainab-hr/ProjetProduits/internal/gateway/middleware"
	"github.com/zainab-hr/ProjetProduits/internal/gateway/proxy"
	"github.com/zainab-hr/ProjetProduits/pkg/config"
	"github.com/zainab-hr/ProjetProduits/pkg/logger"
	pkgredis "github.com/zainab-hr/ProjetProduits/pkg/redis"
	"github.com/zainab-hr/ProjetProduits/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "api-gateway",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting API Gateway...")

	ctx := context.Background()

	telemetryCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "api-gateway",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}
	if _, err := telemetry.Init(ctx, telemetryCfg); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(ctx)

	// Redis is optional: without it the rate limiter falls back to
	// per-instance token buckets
	var redisClient *pkgredis.Client
	redisCfg := &pkgredis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   3,
	}
	if redisClient, err = pkgredis.NewClient(ctx, redisCfg); err != nil {
		appLog.Warn(fmt.Sprintf("Redis unavailable, using local rate limiting: %v", err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	rp := proxy.NewReverseProxy(proxy.Config{
		DefaultTimeout: 30 * time.Second,
		Routes: []proxy.RouteConfig{
			{
				PathPrefix: "/auth",
				Service:    proxy.ServiceConfig{Name: "auth-service", BaseURL: cfg.Services.AuthServiceURL},
			},
			{
				PathPrefix:  "/segment-a",
				StripPrefix: "/segment-a",
				Service:     proxy.ServiceConfig{Name: "segment-a", BaseURL: cfg.Services.SegmentAURL},
				RequireAuth: true,
				PublicRead:  true,
			},
			{
				PathPrefix:  "/segment-b",
				StripPrefix: "/segment-b",
				Service:     proxy.ServiceConfig{Name: "segment-b", BaseURL: cfg.Services.SegmentBURL},
				RequireAuth: true,
				PublicRead:  true,
			},
		},
	})

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(appLog))
	router.Use(middleware.CORS())

	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware("api-gateway"))
	}

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.UseRedis = redisClient != nil
	rateLimitCfg.RedisClient = redisClient
	router.Use(middleware.RateLimiter(rateLimitCfg))

	router.Use(middleware.Auth(tokens, rp.RequiresAuth))

	healthHandler := handler.NewHealthHandler(redisClient)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Everything else goes upstream
	router.NoRoute(rp.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		appLog.Info(fmt.Sprintf("API Gateway listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
