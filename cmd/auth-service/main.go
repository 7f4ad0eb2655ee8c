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
	"github.com/zainab-hr/ProjetProduits/internal/auth/handler"
	"github.com/zainab-hr/ProjetProduits/internal/auth/repository"
	"github.com/zainab-hr/ProjetProduits/internal/auth/service"
	"github.com/zainab-hr/ProjetProduits/internal/auth/sync"
	"github.com/zainab-hr/ProjetProduits/pkg/config"
	"github.com/zainab-hr/ProjetProduits/pkg/database"
	"github.com/zainab-hr/ProjetProduits/pkg/logger"
	"github.com/zainab-hr/ProjetProduits/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "auth-service",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Auth Service...")

	ctx := context.Background()

	telemetryCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "auth-service",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}
	if _, err := telemetry.Init(ctx, telemetryCfg); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	} else if telemetryCfg.Enabled {
		appLog.Info(fmt.Sprintf("Telemetry initialized (collector: %s)", telemetryCfg.CollectorAddr))
	}
	defer telemetry.Shutdown(ctx)

	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

	userRepo := repository.NewPostgresUserRepository(db.Pool())
	tokenRepo := repository.NewPostgresRefreshTokenRepository(db.Pool())

	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	refreshStore := service.NewRefreshTokenStore(tokenRepo, cfg.JWT.RefreshTokenTTL)
	notifier := sync.NewHTTPNotifier(sync.Config{
		SegmentAURL: cfg.Sync.SegmentAURL,
		SegmentBURL: cfg.Sync.SegmentBURL,
		Timeout:     cfg.Sync.Timeout,
	}, appLog)

	authService := service.NewAuthService(userRepo, refreshStore, tokens, notifier, &service.AuthServiceConfig{
		BcryptCost: cfg.JWT.BcryptCost,
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if err := refreshStore.PurgeExpired(sweepCtx); err != nil {
					appLog.Warn(fmt.Sprintf("Expired token sweep failed: %v", err))
				}
			}
		}
	}()

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware("auth-service"))
	}

	healthHandler := handler.NewHealthHandler(db)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	handler.NewAuthHandler(authService, tokens).RegisterRoutes(router)

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
		appLog.Info(fmt.Sprintf("Auth Service listening on %s", addr))
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
