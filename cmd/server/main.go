package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/config"
	"github.com/juan49ers-spec/Repaart-sub012/internal/handlers"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/server"
)

func main() {
	startedAt := time.Now()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := config.EnsureStoreDirectories(cfg.Store); err != nil {
		logrus.Fatalf("Failed to prepare store directories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := server.NewContainer(ctx, cfg)
	cancel()
	if err != nil {
		logrus.Fatalf("Failed to initialize container: %v", err)
	}
	defer container.Close()
	logger := container.Logger

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, &handlers.MiddlewareConfig{
		Logger:         logger,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimit:      cfg.RateLimit.Enabled,
		RequestsPerSec: cfg.RateLimit.RequestsPerSecond,
		Burst:          cfg.RateLimit.Burst,
	})

	routerConfig := &handlers.RouterConfig{
		Services:     container.Services,
		Health:       container.Repositories,
		Tokens:       container.Tokens,
		RequireToken: cfg.JWT.Required,
		Version:      cfg.Version,
		StartedAt:    startedAt,
	}
	handlers.SetupRoutes(router, routerConfig)
	if !cfg.IsProduction() {
		handlers.SetupDevelopmentRoutes(router, routerConfig)
	}

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
		"backend":     container.Repositories.Backend(),
	}).Info("Server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
