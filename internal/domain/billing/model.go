package billing

import (
	"fmt"
	"time"

	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/shopspring/decimal"
)

// Interval is a derived charge for a stretch of time. It is recomputed on
// demand and never stored.
type Interval struct {
	SubscriptionID string
	// Start is inclusive and End exclusive. FIXED intervals have End == Start.
	Start      time.Time
	End        time.Time
	PlanName   string
	PhaseType  types.PhaseType
	SnapshotID string
	Type       types.InvoiceItemType
	Amount     decimal.Decimal
	Currency   string
}

// Key identifies the charge independently of the catalog version that priced it
func (i *Interval) Key() string {
	return ChargeKey(i.Type, i.Start, i.End, i.PlanName, i.PhaseType, i.Amount)
}

// ChargeKey is the identity used to match expected charges with invoiced ones
func ChargeKey(t types.InvoiceItemType, start, end time.Time, plan string, phase types.PhaseType, amount decimal.Decimal) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		t,
		types.FormatDate(start),
		types.FormatDate(end),
		plan,
		phase,
		amount.String(),
	)
}

// Schedule is the expected charge set of a subscription as of a date
type Schedule struct {
	Intervals []*Interval
	// NextBillingDate is the first charge start after the as-of date, nil when
	// nothing further will be billed
	NextBillingDate *time.Time
}

// Total sums the amounts of all intervals
func (s *Schedule) Total() decimal.Decimal {
	total := decimal.Zero
	for _, i := range s.Intervals {
		total = total.Add(i.Amount)
	}
	return total
}
