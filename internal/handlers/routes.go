package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/juan49ers-spec/Repaart-sub012/internal/middleware"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
	"github.com/juan49ers-spec/Repaart-sub012/internal/services"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
)

// HealthChecker reports the state of the document store
type HealthChecker interface {
	Health(ctx context.Context) *repositories.HealthStatus
}

// RouterConfig holds configuration for setting up routes
type RouterConfig struct {
	Services     *services.ServiceContainer
	Health       HealthChecker
	Tokens       *middleware.TokenValidator
	RequireToken bool
	Version      string
	StartedAt    time.Time
}

// MiddlewareConfig holds configuration for the global middleware chain
type MiddlewareConfig struct {
	Logger         *logrus.Logger
	AllowedOrigins []string
	RateLimit      bool
	RequestsPerSec float64
	Burst          int
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, config *RouterConfig) {
	svc := config.Services
	invoiceHandler := NewInvoiceHandler(svc.Invoices)
	paymentHandler := NewPaymentHandler(svc.Receivable, svc.Payments)
	billingHandler := NewBillingHandler(svc.Logistics, svc.BreakEven, svc.Receivable, svc.Invoices)
	taxVaultHandler := NewTaxVaultHandler(svc.TaxVault)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", healthHandler(config))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.ActorExtraction(config.Tokens, config.RequireToken))
	{
		invoices := v1.Group("/invoices")
		{
			invoices.POST("", invoiceHandler.CreateDraft)
			invoices.GET("", invoiceHandler.ListInvoices)
			invoices.GET("/:id", invoiceHandler.GetInvoice)
			invoices.PUT("/:id", invoiceHandler.UpdateDraft)
			invoices.POST("/:id/issue", invoiceHandler.IssueInvoice)
			invoices.POST("/:id/rectify", invoiceHandler.RectifyInvoice)
			invoices.GET("/:id/verify", invoiceHandler.VerifyTotals)
			invoices.GET("/:id/export", invoiceHandler.ExportInvoice)
			invoices.POST("/:id/payments", paymentHandler.AddPayment)
			invoices.GET("/:id/payments", paymentHandler.ListPayments)
			invoices.POST("/:id/card-payments", paymentHandler.CollectCardPayment)
		}

		v1.GET("/payments/:id", paymentHandler.GetPaymentReceipt)

		billing := v1.Group("/billing")
		{
			billing.POST("/calculate", billingHandler.CalculateBilling)
			billing.POST("/break-even", billingHandler.ComputeBreakEven)
			billing.GET("/break-even/:franchise_id/:period", billingHandler.AnalyzePeriod)
			billing.PUT("/metrics", billingHandler.RecordMetrics)
			billing.GET("/debt/:franchise_id", billingHandler.DebtDashboard)
			billing.GET("/debt/:franchise_id/customers/:customer_id", billingHandler.CustomerDebt)
			billing.GET("/customers/:franchise_id/:customer_id/stats", billingHandler.CustomerStats)
			billing.GET("/income/:franchise_id/:period", billingHandler.InvoicedIncome)
		}

		vault := v1.Group("/tax-vault")
		{
			vault.POST("/expenses", taxVaultHandler.RecordExpense)
			vault.GET("/:franchise_id/:period", taxVaultHandler.GetEntry)
			vault.POST("/:franchise_id/:period/close",
				middleware.RequireRole(config.RequireToken, middleware.RoleAdmin),
				taxVaultHandler.CloseMonth)
			vault.POST("/:franchise_id/:period/recalculate",
				middleware.RequireRole(config.RequireToken, middleware.RoleAdmin),
				taxVaultHandler.RecalculateMonth)
			vault.POST("/:franchise_id/:period/unlock-request", taxVaultHandler.RequestUnlock)
		}
	}
}

// RegisterLambdaRoutes mirrors SetupRoutes for the serverless entrypoint
func RegisterLambdaRoutes(router *lambda.Router, svc *services.ServiceContainer) {
	invoiceHandler := NewInvoiceHandler(svc.Invoices)
	paymentHandler := NewPaymentHandler(svc.Receivable, svc.Payments)
	billingHandler := NewBillingHandler(svc.Logistics, svc.BreakEven, svc.Receivable, svc.Invoices)
	taxVaultHandler := NewTaxVaultHandler(svc.TaxVault)

	router.POST("/invoices", invoiceHandler.HandleCreate)
	router.GET("/invoices", invoiceHandler.HandleList)
	router.GET("/invoices/:id", invoiceHandler.HandleGet)
	router.PUT("/invoices/:id", invoiceHandler.HandleUpdate)
	router.POST("/invoices/:id/issue", invoiceHandler.HandleIssue)
	router.POST("/invoices/:id/rectify", invoiceHandler.HandleRectify)
	router.GET("/invoices/:id/verify", invoiceHandler.HandleVerify)
	router.GET("/invoices/:id/export", invoiceHandler.HandleExport)
	router.POST("/invoices/:id/payments", paymentHandler.HandleAdd)
	router.GET("/invoices/:id/payments", paymentHandler.HandleList)
	router.POST("/invoices/:id/card-payments", paymentHandler.HandleCollectCard)
	router.GET("/payments/:id", paymentHandler.HandleGet)

	router.POST("/billing/calculate", billingHandler.HandleCalculate)
	router.POST("/billing/break-even", billingHandler.HandleComputeBreakEven)
	router.GET("/billing/break-even/:franchise_id/:period", billingHandler.HandleAnalyzePeriod)
	router.PUT("/billing/metrics", billingHandler.HandleRecordMetrics)
	router.GET("/billing/debt/:franchise_id", billingHandler.HandleDebtDashboard)
	router.GET("/billing/debt/:franchise_id/customers/:customer_id", billingHandler.HandleCustomerDebt)
	router.GET("/billing/customers/:franchise_id/:customer_id/stats", billingHandler.HandleCustomerStats)
	router.GET("/billing/income/:franchise_id/:period", billingHandler.HandleInvoicedIncome)

	router.POST("/tax-vault/expenses", taxVaultHandler.HandleRecordExpense)
	router.GET("/tax-vault/:franchise_id/:period", taxVaultHandler.HandleGetEntry)
	router.POST("/tax-vault/:franchise_id/:period/close", taxVaultHandler.HandleCloseMonth)
	router.POST("/tax-vault/:franchise_id/:period/recalculate", taxVaultHandler.HandleRecalculate)
	router.POST("/tax-vault/:franchise_id/:period/unlock-request", taxVaultHandler.HandleRequestUnlock)
}

// @Summary Health check
// @Description Report service and store health
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthCheck
// @Failure 503 {object} models.HealthCheck
// @Router /health [get]
func healthHandler(config *RouterConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := models.HealthCheck{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   config.Version,
			Services:  map[string]string{},
		}
		if !config.StartedAt.IsZero() {
			health.Uptime = time.Since(config.StartedAt).Round(time.Second).String()
		}

		if config.Services != nil && config.Services.Payments != nil {
			health.Services["card_payments"] = "available"
		} else {
			health.Services["card_payments"] = "disabled"
		}

		status := http.StatusOK
		if config.Health != nil {
			store := config.Health.Health(c.Request.Context())
			health.Backend = store.Backend
			if store.Healthy {
				health.Services["store"] = "healthy"
			} else {
				health.Status = "unhealthy"
				health.Services["store"] = store.Message
				status = http.StatusServiceUnavailable
			}
		}

		c.JSON(status, health)
	}
}

// SetupMiddleware configures global middleware
func SetupMiddleware(router *gin.Engine, config *MiddlewareConfig) {
	logger := config.Logger

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(config.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())

	// Request size limit (1MB)
	router.Use(middleware.RequestSizeLimit(1 << 20))
	router.Use(middleware.ContentTypeValidation("application/json"))
	router.Use(middleware.RequestValidation())

	if config.RateLimit {
		router.Use(middleware.RateLimiter(config.RequestsPerSec, config.Burst))
	}

	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.PerformanceMonitor(logger, time.Second))
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.ErrorHandler(logger))
}

// SetupDevelopmentRoutes adds development-only routes
func SetupDevelopmentRoutes(router *gin.Engine, config *RouterConfig) {
	dev := router.Group("/dev")
	{
		// Demo token for trying protected routes locally
		dev.POST("/token", func(c *gin.Context) {
			if config.Tokens == nil {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "Tokens disabled", Message: "JWT_SECRET is not set"})
				return
			}
			token, err := config.Tokens.GenerateToken(middleware.Claims{
				UserID:      "demo-user",
				Email:       "demo@repaart.es",
				FranchiseID: c.DefaultQuery("franchise_id", "franchise-demo"),
				Roles:       []string{middleware.RoleAdmin},
			}, 24*time.Hour)
			if err != nil {
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to sign token", Message: err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}
}
