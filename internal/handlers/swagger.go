package handlers

// @title Repaart Billing API
// @version 1.0
// @description Invoicing, receivables, logistics billing and IVA tracking for Repaart franchises

// @contact.name Repaart
// @contact.url https://github.com/juan49ers-spec/Repaart-sub012

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @tag.name invoices
// @tag.description Invoice lifecycle: drafts, issuing and rectification

// @tag.name payments
// @tag.description Manual and card payments against issued invoices

// @tag.name billing
// @tag.description Logistics billing, break-even and debt reporting

// @tag.name tax-vault
// @tag.description Monthly IVA accumulation and closing
