package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/payment"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
)

// ScriptedGateway answers payment requests from a queue of outcomes and
// succeeds once the queue is empty
type ScriptedGateway struct {
	mu       sync.Mutex
	script   []types.PaymentStatus
	requests []*payment.Request
	// Err is returned for every request when set
	Err error
}

var _ payment.Gateway = (*ScriptedGateway)(nil)

func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{}
}

// Then queues the outcome of the next payment
func (g *ScriptedGateway) Then(status types.PaymentStatus) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, status)
	return g
}

func (g *ScriptedGateway) Pay(_ context.Context, req *payment.Request) (*payment.Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.Err != nil {
		return nil, g.Err
	}

	status := types.PaymentStatusSucceeded
	if len(g.script) > 0 {
		status, g.script = g.script[0], g.script[1:]
	}

	p := &payment.Payment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		TenantID:  req.TenantID,
		AccountID: req.AccountID,
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if status != types.PaymentStatusSucceeded {
		p.ErrorMessage = lo.ToPtr("declined")
	}
	return p, nil
}

// Requests returns every payment request seen so far
func (g *ScriptedGateway) Requests() []*payment.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*payment.Request, len(g.requests))
	copy(out, g.requests)
	return out
}
