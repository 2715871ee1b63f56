package main

import (
	"context"
	"ctchen222/popug-auth/internal/api/controller"
	"ctchen222/popug-auth/internal/api/repository"
	"ctchen222/popug-auth/internal/api/service"
	"ctchen222/popug-auth/internal/auth"
	"ctchen222/popug-auth/internal/cache"
	"ctchen222/popug-auth/internal/config"
	"ctchen222/popug-auth/internal/db"
	"ctchen222/popug-auth/internal/logger"
	"ctchen222/popug-auth/internal/server"
	"ctchen222/popug-auth/internal/telemetry"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
)

const (
	serviceName    = "popug-auth"
	serviceVersion = "v0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("popug-auth: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize telemetry before the logger so the slog bridge picks up the
	// real LoggerProvider.
	shutdownTelemetry, err := telemetry.InitOtel(ctx, telemetry.Options{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	appLogger := logger.Init(logger.Options{
		Level: cfg.SlogLevel(),
		JSON:  !cfg.IsDevelopment(),
	})

	// Initialize SQLite DB
	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite db: %w", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	healthChecks := map[string]controller.HealthChecker{"sqlite": pool}
	var serviceOpts []service.Option

	// Initialize Redis
	if cfg.CacheEnabled() {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("failed to close redis", "error", err)
			}
		}()

		userCache := cache.NewUserCache(rdb, cfg.UserCacheTTL)
		serviceOpts = append(serviceOpts, service.WithCache(userCache))
		healthChecks["redis"] = controller.PingFunc(userCache.Ping)
		slog.InfoContext(ctx, "user cache enabled", "ttl", cfg.UserCacheTTL)
	}

	// Create repositories
	uow := repository.NewUnitOfWork(pool)

	// Create services
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens := auth.NewTokenManager([]byte(cfg.JWTSecret), cfg.TokenTTL)
	userService := service.NewUserService(uow, hasher, tokens, serviceOpts...)

	// Create controllers
	userController := controller.NewUserController(userService)
	healthController := controller.NewHealthController(healthChecks)

	// Create the Gin-based server
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.NewServer(userController, healthController, server.Options{
		Logger:         appLogger,
		IsDevelopment:  cfg.IsDevelopment(),
		MaxRequestBody: cfg.MaxRequestBodySize,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server started", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exiting")
	return nil
}
