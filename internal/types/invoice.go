package types

import (
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/samber/lo"
)

// InvoiceItemType is the closed set of item kinds an invoice can carry
type InvoiceItemType string

const (
	InvoiceItemTypeRecurring InvoiceItemType = "RECURRING"
	InvoiceItemTypeFixed     InvoiceItemType = "FIXED"
	// InvoiceItemTypeRepairAdj reverses a previously committed item in full
	InvoiceItemTypeRepairAdj InvoiceItemType = "REPAIR_ADJ"
	// InvoiceItemTypeCBAAdj moves credit between an invoice and the account balance
	InvoiceItemTypeCBAAdj InvoiceItemType = "CBA_ADJ"
)

func (t InvoiceItemType) String() string {
	return string(t)
}

func (t InvoiceItemType) Validate() error {
	allowed := []InvoiceItemType{
		InvoiceItemTypeRecurring,
		InvoiceItemTypeFixed,
		InvoiceItemTypeRepairAdj,
		InvoiceItemTypeCBAAdj,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid invoice item type").
			WithHint("Please provide a valid invoice item type").
			WithReportableDetails(map[string]any{
				"type":    t,
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsCharge reports whether the item is a charge derived from a billing interval
func (t InvoiceItemType) IsCharge() bool {
	return t == InvoiceItemTypeRecurring || t == InvoiceItemTypeFixed
}

// InvoiceStatus is the status of a committed invoice
type InvoiceStatus string

const (
	InvoiceStatusCommitted InvoiceStatus = "COMMITTED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusUnpaid    InvoiceStatus = "UNPAID"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

// PaymentStatus is the outcome of a payment attempt
type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

func (s PaymentStatus) String() string {
	return string(s)
}
