package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentReceipt records one payment against an invoice
type PaymentReceipt struct {
	ID            string           `json:"id"`
	FranchiseID   string           `json:"franchise_id"`
	InvoiceID     string           `json:"invoice_id"`
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	Amount        float64          `json:"amount"`
	Method        PaymentMethod    `json:"method"`
	PaymentDate   time.Time        `json:"payment_date"`
	Reference     string           `json:"reference,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Customer      CustomerSnapshot `json:"customer"`
	CreatedAt     time.Time        `json:"created_at"`
	CreatedBy     string           `json:"created_by,omitempty"`
}

// NewPaymentReceipt creates a receipt for an invoice with generated ID
func NewPaymentReceipt(inv *Invoice, amount float64, method PaymentMethod, paymentDate, now time.Time) *PaymentReceipt {
	return &PaymentReceipt{
		ID:            uuid.New().String(),
		FranchiseID:   inv.FranchiseID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.FullNumber,
		Amount:        Round2(amount),
		Method:        method,
		PaymentDate:   paymentDate,
		Customer:      inv.Customer,
		CreatedAt:     now,
	}
}
