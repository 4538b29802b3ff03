package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusRectified InvoiceStatus = "RECTIFIED"
)

// String returns the string representation
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid checks if the status is one of the known values
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusRectified:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
// Only DRAFT->ISSUED and ISSUED->RECTIFIED exist.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft:
		return next == InvoiceStatusIssued
	case InvoiceStatusIssued:
		return next == InvoiceStatusRectified
	}
	return false
}

// Value implements driver.Valuer
func (s InvoiceStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner
func (s *InvoiceStatus) Scan(value interface{}) error {
	return scanEnum(value, (*string)(s), "InvoiceStatus")
}

// PaymentStatus is derived from the invoice total and the sum of payments
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// String returns the string representation
func (s PaymentStatus) String() string {
	return string(s)
}

// IsValid checks if the status is one of the known values
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid:
		return true
	}
	return false
}

// Value implements driver.Valuer
func (s PaymentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner
func (s *PaymentStatus) Scan(value interface{}) error {
	return scanEnum(value, (*string)(s), "PaymentStatus")
}

// InvoiceType distinguishes ordinary invoices from credit notes
type InvoiceType string

const (
	InvoiceTypeStandard      InvoiceType = "STANDARD"
	InvoiceTypeRectificative InvoiceType = "RECTIFICATIVE"
)

// String returns the string representation
func (t InvoiceType) String() string {
	return string(t)
}

// IsValid checks if the type is one of the known values
func (t InvoiceType) IsValid() bool {
	return t == InvoiceTypeStandard || t == InvoiceTypeRectificative
}

// Value implements driver.Valuer
func (t InvoiceType) Value() (driver.Value, error) {
	return string(t), nil
}

// Scan implements sql.Scanner
func (t *InvoiceType) Scan(value interface{}) error {
	return scanEnum(value, (*string)(t), "InvoiceType")
}

// CustomerType tells which collection holds the customer profile
type CustomerType string

const (
	CustomerTypeFranchise  CustomerType = "FRANCHISE"
	CustomerTypeRestaurant CustomerType = "RESTAURANT"
)

// String returns the string representation
func (t CustomerType) String() string {
	return string(t)
}

// IsValid checks if the customer type is one of the known values
func (t CustomerType) IsValid() bool {
	return t == CustomerTypeFranchise || t == CustomerTypeRestaurant
}

// Value implements driver.Valuer
func (t CustomerType) Value() (driver.Value, error) {
	return string(t), nil
}

// Scan implements sql.Scanner
func (t *CustomerType) Scan(value interface{}) error {
	return scanEnum(value, (*string)(t), "CustomerType")
}

// PaymentMethod is how a payment was collected
type PaymentMethod string

const (
	PaymentMethodTransfer    PaymentMethod = "TRANSFER"
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodCard        PaymentMethod = "CARD"
	PaymentMethodDirectDebit PaymentMethod = "DIRECT_DEBIT"
	PaymentMethodOther       PaymentMethod = "OTHER"
)

// String returns the string representation
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid checks if the method is one of the known values
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodTransfer, PaymentMethodCash, PaymentMethodCard, PaymentMethodDirectDebit, PaymentMethodOther:
		return true
	}
	return false
}

// Value implements driver.Valuer
func (m PaymentMethod) Value() (driver.Value, error) {
	return string(m), nil
}

// Scan implements sql.Scanner
func (m *PaymentMethod) Scan(value interface{}) error {
	return scanEnum(value, (*string)(m), "PaymentMethod")
}

// TaxRate is one of the Spanish IVA brackets
type TaxRate float64

const (
	TaxRateGeneral      TaxRate = 0.21
	TaxRateReduced      TaxRate = 0.10
	TaxRateSuperReduced TaxRate = 0.04
	TaxRateExempt       TaxRate = 0.00
)

// AllowedTaxRates lists the accepted brackets in descending order
var AllowedTaxRates = []TaxRate{TaxRateGeneral, TaxRateReduced, TaxRateSuperReduced, TaxRateExempt}

// ParseTaxRate maps a float onto an allowed bracket.
// Values within 1e-9 of a bracket snap to it so JSON round-trips stay exact.
func ParseTaxRate(rate float64) (TaxRate, error) {
	for _, allowed := range AllowedTaxRates {
		if math.Abs(rate-float64(allowed)) < 1e-9 {
			return allowed, nil
		}
	}
	return 0, NewValidationError("ParseTaxRate", "tax_rate",
		fmt.Sprintf("Tipo de IVA no permitido: %v (permitidos: 21%%, 10%%, 4%%, 0%%)", rate))
}

// IsValid checks if the rate is an allowed bracket
func (r TaxRate) IsValid() bool {
	_, err := ParseTaxRate(float64(r))
	return err == nil
}

// UnmarshalJSON accepts only allowed brackets, so a stored document with an
// unknown rate fails to decode instead of reaching the tax computations
func (r *TaxRate) UnmarshalJSON(data []byte) error {
	var rate float64
	if err := json.Unmarshal(data, &rate); err != nil {
		return err
	}
	parsed, err := ParseTaxRate(rate)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Float64 returns the rate as a float
func (r TaxRate) Float64() float64 {
	return float64(r)
}

// Label returns the percentage label, e.g. "21%"
func (r TaxRate) Label() string {
	return fmt.Sprintf("%g%%", math.Round(float64(r)*10000)/100)
}

func scanEnum(value interface{}, dest *string, name string) error {
	if value == nil {
		*dest = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*dest = v
	case []byte:
		*dest = string(v)
	default:
		return fmt.Errorf("cannot scan %T into %s", value, name)
	}
	return nil
}
