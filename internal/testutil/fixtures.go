package testutil

import (
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// MonthlyPlan is a BASE plan with an optional free trial followed by a
// monthly evergreen phase
func MonthlyPlan(name, currency string, trialDays int, price string) *catalog.Plan {
	desc := &catalog.SimplePlanDescriptor{
		PlanName:      name,
		ProductName:   name,
		Category:      types.PRODUCT_CATEGORY_BASE,
		Currency:      currency,
		Amount:        decimal.RequireFromString(price),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		TrialLength:   trialDays,
		TrialTimeUnit: types.DURATION_UNIT_DAYS,
	}
	return desc.ToPlan()
}

// DiscountPlan is a plan with a fixed length discount phase before the
// evergreen price
func DiscountPlan(name, currency string, discountMonths int, discounted, price string) *catalog.Plan {
	return &catalog.Plan{
		Name:               name,
		Product:            name,
		Category:           types.PRODUCT_CATEGORY_BASE,
		Currency:           currency,
		BillingPeriod:      types.BILLING_PERIOD_MONTHLY,
		BillingPeriodCount: 1,
		Phases: []*catalog.Phase{
			{
				Type:           types.PHASE_TYPE_DISCOUNT,
				Duration:       catalog.Duration{Number: discountMonths, Unit: types.DURATION_UNIT_MONTHS},
				RecurringPrice: lo.ToPtr(decimal.RequireFromString(discounted)),
			},
			{
				Type:           types.PHASE_TYPE_EVERGREEN,
				Duration:       catalog.Duration{Unit: types.DURATION_UNIT_UNLIMITED},
				RecurringPrice: lo.ToPtr(decimal.RequireFromString(price)),
			},
		},
	}
}

// Snapshot builds an unversioned catalog snapshot effective at date
func Snapshot(date time.Time, plans ...*catalog.Plan) *catalog.Snapshot {
	return &catalog.Snapshot{
		EffectiveDate: types.StartOfDay(date),
		Plans:         plans,
	}
}
