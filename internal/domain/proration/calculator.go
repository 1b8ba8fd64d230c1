package proration

import (
	"time"

	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/shopspring/decimal"
)

// Calculator prorates a period price over the covered part of the period
type Calculator interface {
	Calculate(params Params) (*Result, error)
}

// NewCalculator creates a proration calculator that counts calendar days
func NewCalculator() Calculator {
	return &dayBasedCalculator{}
}

// dayBasedCalculator prorates linearly by calendar days
type dayBasedCalculator struct{}

func (c *dayBasedCalculator) Calculate(params Params) (*Result, error) {
	loc, err := validateParams(params)
	if err != nil {
		return nil, err
	}

	// inclusive start, exclusive end
	total := daysInDurationWithDST(params.PeriodStart.In(loc), params.PeriodEnd.In(loc), loc)
	if total <= 0 {
		return nil, ierr.NewError("invalid billing period").
			WithHintf("total days is zero or negative (%v to %v)", params.PeriodStart, params.PeriodEnd).
			Mark(ierr.ErrValidation)
	}
	covered := daysInDurationWithDST(params.From.In(loc), params.To.In(loc), loc)

	return build(params, covered, total), nil
}

// build rounds the prorated amount once, half to even, at the currency precision
func build(params Params, covered, total int) *Result {
	if covered >= total {
		return &Result{
			Coefficient: decimal.NewFromInt(1),
			Amount:      params.Amount.RoundBank(types.GetCurrencyPrecision(params.Currency)),
			Covered:     covered,
			Total:       total,
			Full:        true,
		}
	}

	c := decimal.NewFromInt(int64(covered))
	t := decimal.NewFromInt(int64(total))
	return &Result{
		Coefficient: c.Div(t),
		// multiply before dividing so exact ratios stay exact
		Amount:  params.Amount.Mul(c).Div(t).RoundBank(types.GetCurrencyPrecision(params.Currency)),
		Covered: covered,
		Total:   total,
	}
}

func validateParams(params Params) (*time.Location, error) {
	if !params.PeriodEnd.After(params.PeriodStart) {
		return nil, ierr.NewError("invalid billing period").
			WithHint("Period end must be after period start").
			Mark(ierr.ErrValidation)
	}
	if params.To.Before(params.From) {
		return nil, ierr.NewError("invalid covered range").
			WithHint("Covered range end must not be before its start").
			Mark(ierr.ErrValidation)
	}
	if params.From.Before(params.PeriodStart) || params.To.After(params.PeriodEnd) {
		return nil, ierr.NewError("covered range outside billing period").
			WithHint("The covered range must lie inside the billing period").
			WithReportableDetails(map[string]any{
				"period_start": params.PeriodStart,
				"period_end":   params.PeriodEnd,
				"from":         params.From,
				"to":           params.To,
			}).
			Mark(ierr.ErrValidation)
	}

	if params.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(params.Timezone)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to load timezone '%s': %v", params.Timezone, err).
			Mark(ierr.ErrValidation)
	}
	return loc, nil
}

// daysInDurationWithDST counts calendar days between start and end. Steps are
// taken on the calendar so 23h and 25h DST days count once.
func daysInDurationWithDST(start, end time.Time, loc *time.Location) int {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)

	days := 0
	current := startDay
	for current.Before(endDay) {
		days++
		current = time.Date(current.Year(), current.Month(), current.Day()+1, 0, 0, 0, 0, loc)
	}
	return days
}
