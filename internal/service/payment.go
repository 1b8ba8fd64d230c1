package service

import (
	"context"

	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	"github.com/flexprice/invoicerecon/internal/domain/payment"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/idempotency"
	"github.com/flexprice/invoicerecon/internal/types"
)

// PaymentService collects positive invoice balances through the gateway
type PaymentService interface {
	// Collect attempts payment of the invoice balance and records the outcome
	// on the invoice status
	Collect(ctx context.Context, inv *invoice.Invoice) (*payment.Payment, error)
}

type paymentService struct {
	ServiceParams
	invoices    InvoiceService
	idempotency *idempotency.Generator
}

func NewPaymentService(params ServiceParams, invoiceService InvoiceService) PaymentService {
	return &paymentService{
		ServiceParams: params,
		invoices:      invoiceService,
		idempotency:   idempotency.NewGenerator(),
	}
}

func (s *paymentService) Collect(ctx context.Context, inv *invoice.Invoice) (*payment.Payment, error) {
	if !inv.Balance.IsPositive() {
		return nil, ierr.NewError("invoice has nothing to collect").
			WithHintf("Invoice %s has balance %s", inv.ID, inv.Balance.String()).
			Mark(ierr.ErrValidation)
	}

	req := &payment.Request{
		IdempotencyKey: s.idempotency.PaymentKey(inv.ID),
		TenantID:       inv.TenantID,
		AccountID:      inv.AccountID,
		InvoiceID:      inv.ID,
		Amount:         inv.Balance,
		Currency:       inv.Currency,
	}

	p, err := s.PaymentGateway.Pay(ctx, req)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Payment gateway could not be reached for invoice %s", inv.ID).
			Mark(ierr.ErrSystem)
	}

	status := types.InvoiceStatusUnpaid
	if p.Succeeded() {
		status = types.InvoiceStatusPaid
	}
	if err := s.invoices.UpdateStatus(ctx, inv.ID, status); err != nil {
		return nil, err
	}
	inv.Status = status

	s.Logger.Infow("payment attempted",
		"tenant_id", inv.TenantID,
		"invoice_id", inv.ID,
		"payment_id", p.ID,
		"amount", p.Amount.String(),
		"status", p.Status,
	)
	return p, nil
}
