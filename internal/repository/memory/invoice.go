package memory

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InvoiceStore implements invoice.Repository
type InvoiceStore struct {
	invoices *Store[*invoice.Invoice]

	// mu guards the commit path so an invoice and its items appear together
	mu    sync.RWMutex
	keys  map[string]string
	items []*invoice.InvoiceItem
}

func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{
		invoices: NewStore[*invoice.Invoice]("invoice"),
		keys:     make(map[string]string),
	}
}

func idempotencyIndex(tenantID, key string) string {
	return tenantID + "|" + key
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	c.Items = make([]*invoice.InvoiceItem, len(inv.Items))
	copy(c.Items, inv.Items)
	return &c
}

func (s *InvoiceStore) CommitBatch(ctx context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.IdempotencyKey != "" {
		if _, ok := s.keys[idempotencyIndex(inv.TenantID, inv.IdempotencyKey)]; ok {
			return ierr.NewError("invoice already committed").
				WithHint("An invoice with this idempotency key already exists").
				WithReportableDetails(map[string]any{"idempotency_key": inv.IdempotencyKey}).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	if err := s.invoices.Create(ctx, inv.ID, copyInvoice(inv)); err != nil {
		return err
	}
	if inv.IdempotencyKey != "" {
		s.keys[idempotencyIndex(inv.TenantID, inv.IdempotencyKey)] = inv.ID
	}
	s.items = append(s.items, inv.Items...)
	return nil
}

func (s *InvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyInvoice(inv), nil
}

func (s *InvoiceStore) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*invoice.Invoice, error) {
	s.mu.RLock()
	id, ok := s.keys[idempotencyIndex(tenantID, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, ierr.NewError("invoice not found").
			WithHint("No invoice exists for this idempotency key").
			WithReportableDetails(map[string]any{"idempotency_key": key}).
			Mark(ierr.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *InvoiceStore) ListByAccount(ctx context.Context, tenantID, accountID string) ([]*invoice.Invoice, error) {
	invoices := s.invoices.List(ctx,
		func(_ context.Context, inv *invoice.Invoice) bool {
			return inv.TenantID == tenantID && inv.AccountID == accountID
		},
		func(a, b *invoice.Invoice) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		},
	)
	return lo.Map(invoices, func(inv *invoice.Invoice, _ int) *invoice.Invoice {
		return copyInvoice(inv)
	}), nil
}

func (s *InvoiceStore) UpdateStatus(ctx context.Context, id string, status types.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return err
	}
	updated := copyInvoice(inv)
	updated.Status = status
	return s.invoices.Update(ctx, id, updated)
}

func (s *InvoiceStore) ItemsOverlapping(_ context.Context, subscriptionID string, from, to time.Time) ([]*invoice.InvoiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Filter(s.items, func(item *invoice.InvoiceItem, _ int) bool {
		return item.SubscriptionID == subscriptionID &&
			!item.StartDate.After(to) &&
			!item.EndDate.Before(from)
	}), nil
}

func (s *InvoiceStore) AccountCredit(_ context.Context, tenantID, accountID, currency string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credit := decimal.Zero
	for _, item := range s.items {
		if item.Type == types.InvoiceItemTypeCBAAdj &&
			item.TenantID == tenantID &&
			item.AccountID == accountID &&
			types.IsMatchingCurrency(item.Currency, currency) {
			credit = credit.Add(item.Amount)
		}
	}
	return credit, nil
}

// Items returns every committed item in commit order
func (s *InvoiceStore) Items() []*invoice.InvoiceItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*invoice.InvoiceItem, len(s.items))
	copy(out, s.items)
	return out
}

// Clear drops every invoice
func (s *InvoiceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices.Clear()
	s.keys = make(map[string]string)
	s.items = nil
}
