package postgres

import (
	"context"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/postgres"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	invoiceColumns = `id, invoice_number, tenant_id, account_id, subscription_id, currency, status,
		balance, idempotency_key, trigger_event_id, invoice_date, created_at`
	itemColumns = `id, invoice_id, tenant_id, account_id, subscription_id, item_type, start_date, end_date,
		plan_name, phase_type, snapshot_id, amount, currency, linked_item_id, created_at`
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func normalizeInvoice(inv *invoice.Invoice) *invoice.Invoice {
	inv.InvoiceDate = types.StartOfDay(inv.InvoiceDate)
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv
}

func normalizeItem(item *invoice.InvoiceItem) *invoice.InvoiceItem {
	item.StartDate = types.StartOfDay(item.StartDate)
	item.EndDate = types.StartOfDay(item.EndDate)
	item.CreatedAt = item.CreatedAt.UTC()
	return item
}

func (r *invoiceRepository) CommitBatch(ctx context.Context, inv *invoice.Invoice) error {
	span := postgres.StartRepositorySpan(ctx, "invoice", "commit_batch", map[string]interface{}{
		"invoice_id": inv.ID,
		"items":      len(inv.Items),
	})
	defer postgres.FinishSpan(span)

	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.NamedExecContext(ctx, `
			INSERT INTO invoices (`+invoiceColumns+`)
			VALUES (
				:id, :invoice_number, :tenant_id, :account_id, :subscription_id, :currency, :status,
				:balance, :idempotency_key, :trigger_event_id, :invoice_date, :created_at
			)`, inv); err != nil {
			return postgres.WrapError(err, "invoice", map[string]any{
				"invoice_id":      inv.ID,
				"idempotency_key": inv.IdempotencyKey,
			})
		}
		if len(inv.Items) == 0 {
			return nil
		}

		// sqlx expands the slice into a single multi-row insert
		if _, err := r.db.NamedExecContext(ctx, `
			INSERT INTO invoice_items (`+itemColumns+`)
			VALUES (
				:id, :invoice_id, :tenant_id, :account_id, :subscription_id, :item_type, :start_date, :end_date,
				:plan_name, :phase_type, :snapshot_id, :amount, :currency, :linked_item_id, :created_at
			)`, inv.Items); err != nil {
			return postgres.WrapError(err, "invoice item", map[string]any{"invoice_id": inv.ID})
		}
		return nil
	})
	if err != nil {
		postgres.SetSpanError(span, err)
		return err
	}

	r.logger.Debugw("committed invoice",
		"invoice_id", inv.ID,
		"subscription_id", inv.SubscriptionID,
		"items", len(inv.Items),
	)
	postgres.SetSpanSuccess(span)
	return nil
}

func (r *invoiceRepository) loadItems(ctx context.Context, inv *invoice.Invoice) error {
	var items []*invoice.InvoiceItem
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY seq`, inv.ID,
	); err != nil {
		return postgres.WrapError(err, "invoice item", map[string]any{"invoice_id": inv.ID})
	}
	inv.Items = lo.Map(items, func(item *invoice.InvoiceItem, _ int) *invoice.InvoiceItem {
		return normalizeItem(item)
	})
	return nil
}

func (r *invoiceRepository) getWhere(ctx context.Context, where string, args ...interface{}) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &inv,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+where, args...,
	); err != nil {
		return nil, postgres.WrapError(err, "invoice", nil)
	}
	if err := r.loadItems(ctx, &inv); err != nil {
		return nil, err
	}
	return normalizeInvoice(&inv), nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	return r.getWhere(ctx, `id = $1`, id)
}

func (r *invoiceRepository) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*invoice.Invoice, error) {
	return r.getWhere(ctx, `tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
}

func (r *invoiceRepository) ListByAccount(ctx context.Context, tenantID, accountID string) ([]*invoice.Invoice, error) {
	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE tenant_id = $1 AND account_id = $2
		ORDER BY created_at, id`, tenantID, accountID,
	); err != nil {
		return nil, postgres.WrapError(err, "invoice", map[string]any{"account_id": accountID})
	}
	for _, inv := range invoices {
		if err := r.loadItems(ctx, inv); err != nil {
			return nil, err
		}
		normalizeInvoice(inv)
	}
	return invoices, nil
}

func (r *invoiceRepository) UpdateStatus(ctx context.Context, id string, status types.InvoiceStatus) error {
	result, err := r.db.GetQuerier(ctx).ExecContext(ctx,
		`UPDATE invoices SET status = $2 WHERE id = $1`, id, status,
	)
	if err != nil {
		return postgres.WrapError(err, "invoice", map[string]any{"invoice_id": id})
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("invoice not found").
			WithHint("No invoice exists with this id").
			WithReportableDetails(map[string]any{"invoice_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *invoiceRepository) ItemsOverlapping(ctx context.Context, subscriptionID string, from, to time.Time) ([]*invoice.InvoiceItem, error) {
	var items []*invoice.InvoiceItem
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM invoice_items
		WHERE subscription_id = $1 AND start_date <= $3 AND end_date >= $2
		ORDER BY seq`, subscriptionID, from, to,
	); err != nil {
		return nil, postgres.WrapError(err, "invoice item", map[string]any{"subscription_id": subscriptionID})
	}
	return lo.Map(items, func(item *invoice.InvoiceItem, _ int) *invoice.InvoiceItem {
		return normalizeItem(item)
	}), nil
}

func (r *invoiceRepository) AccountCredit(ctx context.Context, tenantID, accountID, currency string) (decimal.Decimal, error) {
	var credit decimal.Decimal
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &credit, `
		SELECT COALESCE(SUM(amount), 0)
		FROM invoice_items
		WHERE tenant_id = $1 AND account_id = $2 AND item_type = $3 AND LOWER(currency) = LOWER($4)`,
		tenantID, accountID, types.InvoiceItemTypeCBAAdj, currency,
	); err != nil {
		return decimal.Zero, postgres.WrapError(err, "invoice item", map[string]any{"account_id": accountID})
	}
	return credit, nil
}
