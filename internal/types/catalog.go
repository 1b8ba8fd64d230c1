package types

import (
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/samber/lo"
)

// BillingPeriod is the billing period of a plan ex MONTHLY, ANNUAL, WEEKLY, DAILY
type BillingPeriod string

const (
	BILLING_PERIOD_MONTHLY BillingPeriod = "MONTHLY"
	BILLING_PERIOD_ANNUAL  BillingPeriod = "ANNUAL"
	BILLING_PERIOD_WEEKLY  BillingPeriod = "WEEKLY"
	BILLING_PERIOD_DAILY   BillingPeriod = "DAILY"
)

func (p BillingPeriod) String() string {
	return string(p)
}

func (p BillingPeriod) Validate() error {
	allowed := []BillingPeriod{
		BILLING_PERIOD_MONTHLY,
		BILLING_PERIOD_ANNUAL,
		BILLING_PERIOD_WEEKLY,
		BILLING_PERIOD_DAILY,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid billing period").
			WithHint("Please provide a valid billing period").
			WithReportableDetails(map[string]any{
				"billing_period": p,
				"allowed":        allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DurationUnit is the unit of a phase duration
type DurationUnit string

const (
	DURATION_UNIT_DAYS      DurationUnit = "DAYS"
	DURATION_UNIT_WEEKS     DurationUnit = "WEEKS"
	DURATION_UNIT_MONTHS    DurationUnit = "MONTHS"
	DURATION_UNIT_YEARS     DurationUnit = "YEARS"
	DURATION_UNIT_UNLIMITED DurationUnit = "UNLIMITED"
)

func (u DurationUnit) String() string {
	return string(u)
}

func (u DurationUnit) Validate() error {
	allowed := []DurationUnit{
		DURATION_UNIT_DAYS,
		DURATION_UNIT_WEEKS,
		DURATION_UNIT_MONTHS,
		DURATION_UNIT_YEARS,
		DURATION_UNIT_UNLIMITED,
	}
	if !lo.Contains(allowed, u) {
		return ierr.NewError("invalid duration unit").
			WithHint("Please provide a valid phase duration unit").
			WithReportableDetails(map[string]any{
				"unit":    u,
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PhaseType is the kind of a plan phase
type PhaseType string

const (
	PHASE_TYPE_TRIAL     PhaseType = "TRIAL"
	PHASE_TYPE_DISCOUNT  PhaseType = "DISCOUNT"
	PHASE_TYPE_EVERGREEN PhaseType = "EVERGREEN"
)

func (t PhaseType) String() string {
	return string(t)
}

func (t PhaseType) Validate() error {
	allowed := []PhaseType{
		PHASE_TYPE_TRIAL,
		PHASE_TYPE_DISCOUNT,
		PHASE_TYPE_EVERGREEN,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid phase type").
			WithHint("Phase type must be TRIAL, DISCOUNT or EVERGREEN").
			WithReportableDetails(map[string]any{
				"phase_type": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ProductCategory groups products, a subscription's category never changes
// across catalog versions
type ProductCategory string

const (
	PRODUCT_CATEGORY_BASE       ProductCategory = "BASE"
	PRODUCT_CATEGORY_ADD_ON     ProductCategory = "ADD_ON"
	PRODUCT_CATEGORY_STANDALONE ProductCategory = "STANDALONE"
)

func (c ProductCategory) String() string {
	return string(c)
}

func (c ProductCategory) Validate() error {
	allowed := []ProductCategory{
		PRODUCT_CATEGORY_BASE,
		PRODUCT_CATEGORY_ADD_ON,
		PRODUCT_CATEGORY_STANDALONE,
	}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid product category").
			WithHint("Please provide a valid product category").
			WithReportableDetails(map[string]any{
				"category": c,
				"allowed":  allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
