package server

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/payments"
	"github.com/juan49ers-spec/Repaart-sub012/internal/config"
	"github.com/juan49ers-spec/Repaart-sub012/internal/middleware"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
	"github.com/juan49ers-spec/Repaart-sub012/internal/services"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logrus.Logger
	Repositories *repositories.RepositoryManager
	Services     *services.ServiceContainer

	// Tokens is nil when no JWT secret is configured
	Tokens *middleware.TokenValidator
}

// NewLogger builds the request and service logger from the log settings
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// NewContainer opens the configured store and wires every service on top of it
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	logger := NewLogger(cfg.Log)

	repos, err := repositories.NewRepositoryFactory(cfg.Retry, logger).CreateRepositoryManager(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	serviceConfig := services.DefaultServiceConfig()
	serviceConfig.Logger = logger
	serviceConfig.Engine.PaymentTermDays = cfg.Billing.PaymentTermDays
	serviceConfig.Engine.DuplicateCheck = cfg.Billing.DuplicateCheck
	serviceConfig.DefaultRates = cfg.Billing.DefaultRates
	if cfg.Rates != nil {
		serviceConfig.DefaultRates = cfg.Rates.Default
		serviceConfig.FranchiseRates = cfg.Rates.Franchises
	}

	if cfg.MercadoPago.AccessToken != "" || cfg.MercadoPago.Mock {
		gateway, err := payments.NewMercadoPagoGateway(cfg.MercadoPago.AccessToken, cfg.MercadoPago.Mock, logger)
		if err != nil {
			repos.Close()
			return nil, fmt.Errorf("failed to create payment gateway: %w", err)
		}
		serviceConfig.Gateway = gateway
	} else {
		logger.Warn("No MercadoPago access token configured, card payments are disabled")
	}

	serviceContainer, err := services.NewServiceContainer(repos, serviceConfig)
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("failed to create service container: %w", err)
	}
	if err := serviceContainer.Validate(); err != nil {
		repos.Close()
		return nil, fmt.Errorf("invalid service container: %w", err)
	}

	container := &Container{
		Config:       cfg,
		Logger:       logger,
		Repositories: repos,
		Services:     serviceContainer,
	}
	if cfg.JWT.Secret != "" {
		container.Tokens = middleware.NewTokenValidator(cfg.JWT.Secret, "")
	}

	logger.WithFields(logrus.Fields{
		"backend":       repos.Backend(),
		"card_payments": serviceContainer.Payments != nil,
		"environment":   cfg.Environment,
		"mode":          config.GetDeploymentMode(),
	}).Info("Container initialized")

	return container, nil
}

// Close cleans up all resources
func (c *Container) Close() error {
	if c.Services != nil {
		if err := c.Services.Close(); err != nil {
			return fmt.Errorf("failed to close services: %w", err)
		}
	}

	if c.Repositories != nil {
		if err := c.Repositories.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}

	return nil
}
