package billing

import (
	"sort"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	"github.com/flexprice/invoicerecon/internal/domain/proration"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
)

// Calculator turns timeline segments into billing intervals. It is pure and
// deterministic so the same inputs always yield the same schedule.
type Calculator struct {
	proration proration.Calculator
}

func NewCalculator() *Calculator {
	return &Calculator{
		proration: proration.NewCalculator(),
	}
}

// Calculate returns every interval starting on or before asOf. Billing is in
// advance, so a period is charged in full as soon as it starts and prorated
// only when the segment covering it is cut short.
func (c *Calculator) Calculate(sub *entitlement.Subscription, segments []*entitlement.Segment, asOf time.Time) (*Schedule, error) {
	asOf = types.StartOfDay(asOf)
	schedule := &Schedule{}

	nextCandidate := func(t time.Time) {
		if schedule.NextBillingDate == nil || t.Before(*schedule.NextBillingDate) {
			schedule.NextBillingDate = lo.ToPtr(t)
		}
	}

	for _, seg := range segments {
		phase := seg.Phase()
		if phase == nil {
			continue
		}
		bound := seg.Bound()
		if bound != nil && !bound.After(seg.Start) {
			continue
		}

		if phase.FixedPrice != nil && seg.PhaseEntered {
			if seg.Start.After(asOf) {
				nextCandidate(seg.Start)
			} else {
				schedule.Intervals = append(schedule.Intervals, &Interval{
					SubscriptionID: sub.ID,
					Start:          seg.Start,
					End:            seg.Start,
					PlanName:       seg.Plan.Name,
					PhaseType:      phase.Type,
					SnapshotID:     seg.SnapshotID,
					Type:           types.InvoiceItemTypeFixed,
					Amount:         phase.FixedPrice.RoundBank(types.GetCurrencyPrecision(sub.Currency)),
					Currency:       sub.Currency,
				})
			}
		}

		if !phase.HasRecurringCharge() {
			continue
		}

		intervals, next, err := c.recurring(sub, seg, bound, asOf)
		if err != nil {
			return nil, err
		}
		schedule.Intervals = append(schedule.Intervals, intervals...)
		if next != nil {
			nextCandidate(*next)
		}
	}

	sort.SliceStable(schedule.Intervals, func(i, j int) bool {
		a, b := schedule.Intervals[i], schedule.Intervals[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		// fixed phase-entry charges first
		return a.Type == types.InvoiceItemTypeFixed && b.Type != types.InvoiceItemTypeFixed
	})
	return schedule, nil
}

// recurring splits a segment into billing periods aligned on the segment anchor
func (c *Calculator) recurring(
	sub *entitlement.Subscription,
	seg *entitlement.Segment,
	bound *time.Time,
	asOf time.Time,
) ([]*Interval, *time.Time, error) {
	plan := seg.Plan
	phase := seg.Phase()

	var out []*Interval
	for k := 0; ; k++ {
		periodStart, err := types.AddBillingPeriods(seg.Anchor, k, plan.BillingPeriodCount, plan.BillingPeriod)
		if err != nil {
			return nil, nil, err
		}
		periodEnd, err := types.AddBillingPeriods(seg.Anchor, k+1, plan.BillingPeriodCount, plan.BillingPeriod)
		if err != nil {
			return nil, nil, err
		}
		if !periodEnd.After(seg.Start) {
			continue
		}
		if bound != nil && !periodStart.Before(*bound) {
			return out, nil, nil
		}

		from := types.MaxTime(periodStart, seg.Start)
		to := periodEnd
		if bound != nil {
			to = types.MinTime(periodEnd, *bound)
		}
		if from.After(asOf) {
			return out, lo.ToPtr(from), nil
		}

		result, err := c.proration.Calculate(proration.Params{
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			From:        from,
			To:          to,
			Amount:      *phase.RecurringPrice,
			Currency:    sub.Currency,
			Timezone:    plan.Timezone,
		})
		if err != nil {
			return nil, nil, err
		}

		out = append(out, &Interval{
			SubscriptionID: sub.ID,
			Start:          from,
			End:            to,
			PlanName:       plan.Name,
			PhaseType:      phase.Type,
			SnapshotID:     seg.SnapshotID,
			Type:           types.InvoiceItemTypeRecurring,
			Amount:         result.Amount,
			Currency:       sub.Currency,
		})
	}
}
