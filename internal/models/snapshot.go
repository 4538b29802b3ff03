package models

import "strings"

// Placeholder values left by onboarding that must never reach an issued invoice
var issuerPlaceholders = map[string]bool{
	"PENDIENTE": true,
	"B00000000": true,
	"000000000": true,
}

// Markers that flag an onboarding fiscal name anywhere in the text
var fiscalNameMarkers = []string{"CONFIGURAR", "PENDIENTE"}

// Address is a postal address copied into snapshots
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country,omitempty"`
}

// CustomerSnapshot is the customer fiscal data embedded by copy in an invoice.
// It never changes after the invoice is created.
type CustomerSnapshot struct {
	ID      string       `json:"id"`
	Type    CustomerType `json:"type"`
	Name    string       `json:"name"`
	TaxID   string       `json:"tax_id"`
	Email   string       `json:"email,omitempty"`
	Phone   string       `json:"phone,omitempty"`
	Address Address      `json:"address"`
}

// WithDefaults fills missing fields with the values used on printed invoices
func (c CustomerSnapshot) WithDefaults() CustomerSnapshot {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = "Sin nombre"
	}
	if strings.TrimSpace(c.TaxID) == "" {
		c.TaxID = "N/A"
	}
	if strings.TrimSpace(c.Address.Country) == "" {
		c.Address.Country = "ES"
	}
	return c
}

// IssuerSnapshot is the franchise fiscal data stamped on an invoice at issue time
type IssuerSnapshot struct {
	FranchiseID string  `json:"franchise_id"`
	FiscalName  string  `json:"fiscal_name"`
	TaxID       string  `json:"tax_id"`
	Phone       string  `json:"phone"`
	Email       string  `json:"email,omitempty"`
	Address     Address `json:"address"`
}

// MissingField returns the first required issuer field that is empty or a placeholder
func (i IssuerSnapshot) MissingField() string {
	required := []struct {
		name  string
		value string
	}{
		{"fiscal_name", i.FiscalName},
		{"tax_id", i.TaxID},
		{"phone", i.Phone},
	}
	for _, field := range required {
		value := strings.TrimSpace(field.value)
		if value == "" || issuerPlaceholders[strings.ToUpper(value)] {
			return field.name
		}
		if field.name == "fiscal_name" && isPlaceholderFiscalName(value) {
			return field.name
		}
	}
	return ""
}

func isPlaceholderFiscalName(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range fiscalNameMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// FranchiseProfile is the stored profile of a franchise or restaurant.
// Franchises double as issuers and as customers of the central company.
type FranchiseProfile struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	FiscalName string       `json:"fiscal_name,omitempty"`
	TaxID      string       `json:"tax_id,omitempty"`
	Email      string       `json:"email,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	Address    Address      `json:"address"`
	Rates      *RateProfile `json:"rates,omitempty"`
}

// CustomerSnapshot copies the profile into an immutable snapshot
func (p FranchiseProfile) CustomerSnapshot(customerType CustomerType) CustomerSnapshot {
	name := p.FiscalName
	if strings.TrimSpace(name) == "" {
		name = p.Name
	}
	return CustomerSnapshot{
		ID:      p.ID,
		Type:    customerType,
		Name:    name,
		TaxID:   p.TaxID,
		Email:   p.Email,
		Phone:   p.Phone,
		Address: p.Address,
	}.WithDefaults()
}

// IssuerSnapshot copies the profile into an issuer snapshot
func (p FranchiseProfile) IssuerSnapshot() IssuerSnapshot {
	issuer := IssuerSnapshot{
		FranchiseID: p.ID,
		FiscalName:  p.FiscalName,
		TaxID:       p.TaxID,
		Phone:       p.Phone,
		Email:       p.Email,
		Address:     p.Address,
	}
	if strings.TrimSpace(issuer.Address.Country) == "" {
		issuer.Address.Country = "España"
	}
	return issuer
}
