package payment

import (
	"time"

	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/shopspring/decimal"
)

// Request asks the gateway to collect an invoice balance
type Request struct {
	// The idempotency_key prevents collecting the same invoice twice
	IdempotencyKey string `json:"idempotency_key"`
	TenantID       string `json:"tenant_id"`
	AccountID      string `json:"account_id"`
	InvoiceID      string `json:"invoice_id"`
	// The amount to collect, always positive
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (r *Request) Validate() error {
	if r.InvoiceID == "" {
		return ierr.NewError("invoice id is required").
			WithHint("A payment must reference the invoice it settles").
			Mark(ierr.ErrValidation)
	}
	if !r.Amount.IsPositive() {
		return ierr.NewError("payment amount must be positive").
			WithHint("Only invoices with a positive balance are collected").
			WithReportableDetails(map[string]any{
				"invoice_id": r.InvoiceID,
				"amount":     r.Amount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Payment is the outcome of a single collection attempt
type Payment struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	AccountID string          `json:"account_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	// The status is SUCCEEDED or FAILED, gateways never leave a payment pending
	Status types.PaymentStatus `json:"status"`
	// The error_message explains a failed attempt (optional)
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Succeeded reports whether the balance was collected
func (p *Payment) Succeeded() bool {
	return p.Status == types.PaymentStatusSucceeded
}
