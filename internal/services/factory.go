package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// ServiceContainer holds all service instances
type ServiceContainer struct {
	Invoices   InvoiceEngine
	Logistics  LogisticsBilling
	Receivable AccountsReceivable
	BreakEven  BreakEvenAnalyzer
	TaxVault   TaxVault
	Payments   PaymentCollector
}

// ServiceConfig holds configuration for services
type ServiceConfig struct {
	Engine         InvoiceEngineConfig
	DefaultRates   models.BillingRates
	FranchiseRates map[string]models.BillingRates

	// Gateway charges cards. Without one, card collection is unavailable.
	Gateway PaymentGateway

	Clock  Clock
	Logger *logrus.Logger
}

// DefaultServiceConfig returns the configuration used when none is given
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Engine: DefaultInvoiceEngineConfig(),
		DefaultRates: models.BillingRates{
			TaxRate:        models.TaxRateGeneral,
			DistanceRanges: models.DefaultDistanceRanges(),
		},
		Clock: SystemClock{},
	}
}

// NewServiceContainer creates a new service container with all services
func NewServiceContainer(repos RepositoryProvider, config *ServiceConfig) (*ServiceContainer, error) {
	if repos == nil {
		return nil, fmt.Errorf("repository provider cannot be nil")
	}
	if config == nil {
		config = DefaultServiceConfig()
	}
	clock := config.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}

	taxVault := NewTaxVaultService(repos, clock, logger)
	receivable := NewAccountsReceivableService(repos, clock, logger)

	container := &ServiceContainer{
		Invoices:   NewInvoiceEngine(repos, taxVault, clock, config.Engine, logger),
		Logistics:  NewLogisticsBillingService(repos, config.DefaultRates, config.FranchiseRates, logger),
		Receivable: receivable,
		BreakEven:  NewBreakEvenService(repos, logger),
		TaxVault:   taxVault,
	}
	if config.Gateway != nil {
		container.Payments = NewPaymentCollectionService(repos, receivable, config.Gateway, logger)
	}

	return container, nil
}

// Validate validates that all services are properly initialized.
// Payments is optional.
func (sc *ServiceContainer) Validate() error {
	if sc.Invoices == nil {
		return fmt.Errorf("invoice engine is nil")
	}
	if sc.Logistics == nil {
		return fmt.Errorf("logistics billing service is nil")
	}
	if sc.Receivable == nil {
		return fmt.Errorf("accounts receivable service is nil")
	}
	if sc.BreakEven == nil {
		return fmt.Errorf("break-even analyzer is nil")
	}
	if sc.TaxVault == nil {
		return fmt.Errorf("tax vault service is nil")
	}
	return nil
}

// Close performs cleanup for all services
func (sc *ServiceContainer) Close() error {
	return nil
}
