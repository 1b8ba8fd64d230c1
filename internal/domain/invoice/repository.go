package invoice

import (
	"context"
	"time"

	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/shopspring/decimal"
)

// Repository stores committed invoices and their items
type Repository interface {
	// CommitBatch stores the invoice with all its items atomically. A second
	// invoice with the same idempotency key fails with ErrAlreadyExists.
	CommitBatch(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*Invoice, error)
	ListByAccount(ctx context.Context, tenantID, accountID string) ([]*Invoice, error)
	UpdateStatus(ctx context.Context, id string, status types.InvoiceStatus) error

	// ItemsOverlapping returns the subscription's items starting on or before
	// to and ending on or after from, in commit order
	ItemsOverlapping(ctx context.Context, subscriptionID string, from, to time.Time) ([]*InvoiceItem, error)
	// AccountCredit is the signed sum of the account's CBA_ADJ items
	AccountCredit(ctx context.Context, tenantID, accountID, currency string) (decimal.Decimal, error)
}
