package proration

import (
	"time"

	"github.com/shopspring/decimal"
)

// Params describes the part of a billing period that is actually covered
type Params struct {
	// PeriodStart and PeriodEnd bound the full billing period, end exclusive
	PeriodStart time.Time
	PeriodEnd   time.Time
	// From and To bound the covered part of the period, To exclusive
	From time.Time
	To   time.Time
	// Amount is the price of the full period
	Amount   decimal.Decimal
	Currency string
	// Timezone in which calendar days are counted, UTC when empty
	Timezone string
}

// Result holds the prorated amount and how it was derived
type Result struct {
	Coefficient decimal.Decimal
	Amount      decimal.Decimal
	Covered     int
	Total       int
	// Full is set when the covered part is the whole period and no proration applied
	Full bool
}
