package payment

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
)

// Gateway collects invoice balances. A declined payment is reported through
// the returned Payment status, errors are reserved for failures to reach the
// gateway at all.
type Gateway interface {
	Pay(ctx context.Context, req *Request) (*Payment, error)
}

// MemoryGateway settles every request instantly. When autoPay is off every
// attempt is declined, leaving invoices unpaid.
type MemoryGateway struct {
	autoPay bool

	mu       sync.Mutex
	payments map[string]*Payment
}

func NewMemoryGateway(autoPay bool) *MemoryGateway {
	return &MemoryGateway{
		autoPay:  autoPay,
		payments: make(map[string]*Payment),
	}
}

func (g *MemoryGateway) Pay(_ context.Context, req *Request) (*Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if req.IdempotencyKey != "" {
		if p, ok := g.payments[req.IdempotencyKey]; ok {
			return p, nil
		}
	}

	p := &Payment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		TenantID:  req.TenantID,
		AccountID: req.AccountID,
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    types.PaymentStatusSucceeded,
		CreatedAt: time.Now().UTC(),
	}
	if !g.autoPay {
		p.Status = types.PaymentStatusFailed
		p.ErrorMessage = lo.ToPtr("automatic payment is disabled")
	}

	if req.IdempotencyKey != "" {
		g.payments[req.IdempotencyKey] = p
	}
	return p, nil
}
