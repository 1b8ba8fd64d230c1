package service

import (
	"context"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/idempotency"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CommitRequest is one reconciliation batch to be written as an invoice
type CommitRequest struct {
	TenantID       string
	AccountID      string
	SubscriptionID string
	Currency       string
	TriggerEventID string
	InvoiceDate    time.Time
	Items          []*invoice.InvoiceItem
}

// InvoiceService commits reconciliation batches as immutable invoices
type InvoiceService interface {
	// Commit writes the batch atomically, moving credit between the invoice
	// and the account balance. Committing the same batch twice returns the
	// invoice created the first time.
	Commit(ctx context.Context, req *CommitRequest) (*invoice.Invoice, error)
	Get(ctx context.Context, id string) (*invoice.Invoice, error)
	ListByAccount(ctx context.Context, tenantID, accountID string) ([]*invoice.Invoice, error)
	AccountCredit(ctx context.Context, tenantID, accountID, currency string) (decimal.Decimal, error)
	UpdateStatus(ctx context.Context, id string, status types.InvoiceStatus) error
}

type invoiceService struct {
	ServiceParams
	idempotency *idempotency.Generator
	// accounts serialises credit consumption per account
	accounts *keyedMutex
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
		idempotency:   idempotency.NewGenerator(),
		accounts:      newKeyedMutex(),
	}
}

func (s *invoiceService) batchKey(req *CommitRequest) string {
	itemKeys := lo.Map(req.Items, func(i *invoice.InvoiceItem, _ int) string {
		if i.LinkedItemID != "" {
			return i.Key() + "#" + i.LinkedItemID
		}
		return i.Key()
	})
	return s.idempotency.BatchKey(req.SubscriptionID, req.TriggerEventID, req.InvoiceDate, itemKeys)
}

func (s *invoiceService) Commit(ctx context.Context, req *CommitRequest) (*invoice.Invoice, error) {
	if len(req.Items) == 0 {
		return nil, ierr.NewError("nothing to commit").
			WithHint("An invoice needs at least one item").
			Mark(ierr.ErrValidation)
	}

	key := s.batchKey(req)
	if existing, err := s.InvoiceRepo.GetByIdempotencyKey(ctx, req.TenantID, key); err == nil {
		s.Logger.Debugw("reconciliation batch already committed",
			"subscription_id", req.SubscriptionID,
			"invoice_id", existing.ID,
		)
		return existing, nil
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	lockKey := req.TenantID + "|" + req.AccountID
	if err := s.accounts.Lock(ctx, lockKey); err != nil {
		return nil, err
	}
	defer s.accounts.Unlock(lockKey)

	now := time.Now().UTC()
	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		Number:         types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		TenantID:       req.TenantID,
		AccountID:      req.AccountID,
		SubscriptionID: req.SubscriptionID,
		Currency:       req.Currency,
		Status:         types.InvoiceStatusCommitted,
		IdempotencyKey: key,
		TriggerEventID: req.TriggerEventID,
		InvoiceDate:    types.StartOfDay(req.InvoiceDate),
		CreatedAt:      now,
	}

	items := make([]*invoice.InvoiceItem, 0, len(req.Items)+1)
	for _, item := range req.Items {
		items = append(items, s.stamp(inv, item, now))
	}

	adj, err := s.creditAdjustment(ctx, inv, invoice.Total(items))
	if err != nil {
		return nil, err
	}
	if adj != nil {
		items = append(items, s.stamp(inv, adj, now))
	}

	inv.Items = items
	inv.Balance = invoice.Total(items)

	if err := s.InvoiceRepo.CommitBatch(ctx, inv); err != nil {
		if ierr.IsAlreadyExists(err) {
			return s.InvoiceRepo.GetByIdempotencyKey(ctx, req.TenantID, key)
		}
		return nil, err
	}

	s.Logger.Infow("invoice committed",
		"tenant_id", inv.TenantID,
		"invoice_id", inv.ID,
		"invoice_number", inv.Number,
		"subscription_id", inv.SubscriptionID,
		"items", len(inv.Items),
		"balance", inv.Balance.String(),
	)
	return inv, nil
}

// creditAdjustment moves a negative balance onto the account as credit, or
// applies available credit against a positive balance
func (s *invoiceService) creditAdjustment(ctx context.Context, inv *invoice.Invoice, balance decimal.Decimal) (*invoice.InvoiceItem, error) {
	var amount decimal.Decimal
	switch balance.Sign() {
	case -1:
		amount = balance.Neg()
	case 1:
		credit, err := s.InvoiceRepo.AccountCredit(ctx, inv.TenantID, inv.AccountID, inv.Currency)
		if err != nil {
			return nil, err
		}
		if !credit.IsPositive() {
			return nil, nil
		}
		amount = decimal.Min(credit, balance).Neg()
	default:
		return nil, nil
	}

	return &invoice.InvoiceItem{
		Type:      types.InvoiceItemTypeCBAAdj,
		StartDate: inv.InvoiceDate,
		EndDate:   inv.InvoiceDate,
		Amount:    amount,
	}, nil
}

func (s *invoiceService) stamp(inv *invoice.Invoice, item *invoice.InvoiceItem, now time.Time) *invoice.InvoiceItem {
	out := *item
	if out.ID == "" {
		out.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM)
	}
	out.InvoiceID = inv.ID
	out.TenantID = inv.TenantID
	out.AccountID = inv.AccountID
	out.SubscriptionID = inv.SubscriptionID
	out.Currency = inv.Currency
	out.CreatedAt = now
	return &out
}

func (s *invoiceService) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	return s.InvoiceRepo.Get(ctx, id)
}

func (s *invoiceService) ListByAccount(ctx context.Context, tenantID, accountID string) ([]*invoice.Invoice, error) {
	return s.InvoiceRepo.ListByAccount(ctx, tenantID, accountID)
}

func (s *invoiceService) AccountCredit(ctx context.Context, tenantID, accountID, currency string) (decimal.Decimal, error) {
	return s.InvoiceRepo.AccountCredit(ctx, tenantID, accountID, currency)
}

func (s *invoiceService) UpdateStatus(ctx context.Context, id string, status types.InvoiceStatus) error {
	return s.InvoiceRepo.UpdateStatus(ctx, id, status)
}
