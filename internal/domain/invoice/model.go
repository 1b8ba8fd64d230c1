package invoice

import (
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/billing"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice is a dated group of items for one account. Committed invoices are
// never modified, corrections arrive as items on later invoices.
type Invoice struct {
	ID       string `db:"id" json:"id"`
	Number   string `db:"invoice_number" json:"invoice_number"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	// AccountID owns the invoice and any credit it generates
	AccountID      string              `db:"account_id" json:"account_id"`
	SubscriptionID string              `db:"subscription_id" json:"subscription_id"`
	Currency       string              `db:"currency" json:"currency"`
	Status         types.InvoiceStatus `db:"status" json:"status"`
	Balance        decimal.Decimal     `db:"balance" json:"balance"`
	// IdempotencyKey is derived from the batch contents so a retried commit
	// finds the invoice it already created
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	TriggerEventID string    `db:"trigger_event_id" json:"trigger_event_id,omitempty"`
	InvoiceDate    time.Time `db:"invoice_date" json:"invoice_date"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	Items []*InvoiceItem `db:"-" json:"items"`
}

// InvoiceItem is a single signed line of an invoice
type InvoiceItem struct {
	ID             string                `db:"id" json:"id"`
	InvoiceID      string                `db:"invoice_id" json:"invoice_id"`
	TenantID       string                `db:"tenant_id" json:"tenant_id"`
	AccountID      string                `db:"account_id" json:"account_id"`
	SubscriptionID string                `db:"subscription_id" json:"subscription_id"`
	Type           types.InvoiceItemType `db:"item_type" json:"type"`
	StartDate      time.Time             `db:"start_date" json:"start_date"`
	EndDate        time.Time             `db:"end_date" json:"end_date"`
	PlanName       string                `db:"plan_name" json:"plan_name,omitempty"`
	PhaseType      types.PhaseType       `db:"phase_type" json:"phase_type,omitempty"`
	SnapshotID     string                `db:"snapshot_id" json:"snapshot_id,omitempty"`
	Amount         decimal.Decimal       `db:"amount" json:"amount"`
	Currency       string                `db:"currency" json:"currency"`
	// LinkedItemID points a REPAIR_ADJ at the item it reverses
	LinkedItemID string    `db:"linked_item_id" json:"linked_item_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Key identifies a charge item the same way billing intervals are identified
func (i *InvoiceItem) Key() string {
	return billing.ChargeKey(i.Type, i.StartDate, i.EndDate, i.PlanName, i.PhaseType, i.Amount)
}

// Total sums the signed amounts of items
func Total(items []*InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, i := range items {
		total = total.Add(i.Amount)
	}
	return total
}

// LiveCharges returns the RECURRING and FIXED items not yet reversed by a repair
func LiveCharges(items []*InvoiceItem) []*InvoiceItem {
	reversed := make(map[string]struct{})
	for _, i := range items {
		if i.Type == types.InvoiceItemTypeRepairAdj && i.LinkedItemID != "" {
			reversed[i.LinkedItemID] = struct{}{}
		}
	}

	live := make([]*InvoiceItem, 0, len(items))
	for _, i := range items {
		if !i.Type.IsCharge() {
			continue
		}
		if _, ok := reversed[i.ID]; ok {
			continue
		}
		live = append(live, i)
	}
	return live
}
