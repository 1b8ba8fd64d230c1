package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	"github.com/flexprice/invoicerecon/internal/domain/payment"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/publisher"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// Outcome describes one reconciliation run triggered by an entitlement event
// or a due timer
type Outcome struct {
	SubscriptionID string
	AsOf           time.Time
	// Event is the entitlement event that triggered the run, nil for billing timers
	Event   *entitlement.Event
	Result  *Result
	Invoice *invoice.Invoice
	Payment *payment.Payment
}

// ClockAdvanceResult collects the runs fired by a clock advance
type ClockAdvanceResult struct {
	Date     time.Time
	Outcomes []*Outcome
	// Failures maps subscription ids to the error that stopped their timers
	Failures map[string]error
}

// Coordinator drives the reconcile, commit and payment pipeline in response
// to entitlement events and clock advances. Runs of one subscription are
// strictly sequential while distinct subscriptions proceed concurrently.
type Coordinator interface {
	OnEntitlementEvent(ctx context.Context, event *entitlement.Event) (*Outcome, error)
	OnClockAdvance(ctx context.Context, date time.Time) (*ClockAdvanceResult, error)
}

type coordinator struct {
	ServiceParams
	entitlements EntitlementService
	reconciler   ReconciliationService
	payments     PaymentService
	sequencer    *keyedMutex
}

// NewCoordinator registers itself as a hook on the entitlement service so
// every committed event is reconciled
func NewCoordinator(
	params ServiceParams,
	entitlementService EntitlementService,
	reconciliationService ReconciliationService,
	paymentService PaymentService,
) Coordinator {
	c := &coordinator{
		ServiceParams: params,
		entitlements:  entitlementService,
		reconciler:    reconciliationService,
		payments:      paymentService,
		sequencer:     newKeyedMutex(),
	}
	entitlementService.RegisterHook(func(ctx context.Context, _ *entitlement.Subscription, event *entitlement.Event) error {
		_, err := c.OnEntitlementEvent(ctx, event)
		return err
	})
	return c
}

func (c *coordinator) OnEntitlementEvent(ctx context.Context, event *entitlement.Event) (*Outcome, error) {
	if err := c.sequencer.Lock(ctx, event.SubscriptionID); err != nil {
		return nil, err
	}
	defer c.sequencer.Unlock(event.SubscriptionID)

	sub, err := c.EntitlementRepo.GetSubscription(ctx, event.SubscriptionID)
	if err != nil {
		return nil, err
	}
	outcome, err := c.run(ctx, sub, c.Clock.Now(), event)
	if err != nil {
		return outcome, err
	}
	return outcome, c.markElapsedPhases(ctx, sub.ID, outcome.AsOf)
}

// markElapsedPhases records phase transitions a run has already billed so
// the clock does not fire them again
func (c *coordinator) markElapsedPhases(ctx context.Context, subscriptionID string, asOf time.Time) error {
	state, err := c.entitlements.GetState(ctx, subscriptionID, asOf)
	if err != nil {
		return err
	}
	for _, at := range state.PendingPhaseChanges {
		if _, err := c.entitlements.RecordPhaseChange(ctx, subscriptionID, at); err != nil {
			return err
		}
	}
	return nil
}

func (c *coordinator) OnClockAdvance(ctx context.Context, date time.Time) (*ClockAdvanceResult, error) {
	date = types.StartOfDay(date)
	subs, err := c.EntitlementRepo.ListSubscriptions(ctx, "")
	if err != nil {
		return nil, err
	}

	result := &ClockAdvanceResult{
		Date:     date,
		Failures: make(map[string]error),
	}
	var mu sync.Mutex

	p := pool.New().WithContext(ctx).WithMaxGoroutines(lo.Max([]int{c.Config.Reconciliation.Workers, 1}))
	for _, sub := range subs {
		sub := sub
		p.Go(func(ctx context.Context) error {
			outcomes, err := c.fireTimers(ctx, sub.ID, date)
			mu.Lock()
			defer mu.Unlock()
			result.Outcomes = append(result.Outcomes, outcomes...)
			if err != nil {
				result.Failures[sub.ID] = err
			}
			return err
		})
	}
	err = p.Wait()

	c.Logger.Infow("clock advanced",
		"date", types.FormatDate(date),
		"subscriptions", len(subs),
		"runs", len(result.Outcomes),
		"failures", len(result.Failures),
	)
	return result, err
}

// fireTimers runs the subscription's timers due on or before date, earliest
// first. A phase timer and a billing timer on the same day share one run.
func (c *coordinator) fireTimers(ctx context.Context, subscriptionID string, date time.Time) ([]*Outcome, error) {
	if err := c.sequencer.Lock(ctx, subscriptionID); err != nil {
		return nil, err
	}
	defer c.sequencer.Unlock(subscriptionID)

	var outcomes []*Outcome
	for fired := 0; ; fired++ {
		if fired >= c.Config.Reconciliation.MaxTimersPerAdvance {
			return outcomes, ierr.NewError("too many timers fired in one clock advance").
				WithHintf("Subscription %s fired %d timers before %s", subscriptionID, fired, types.FormatDate(date)).
				Mark(ierr.ErrSystem)
		}

		sub, err := c.EntitlementRepo.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return outcomes, err
		}
		state, err := c.entitlements.GetState(ctx, subscriptionID, date)
		if err != nil {
			return outcomes, err
		}

		phaseTimer := lo.FirstOrEmpty(state.PendingPhaseChanges)
		billingTimer := time.Time{}
		if sub.NextBillingDate != nil && !sub.NextBillingDate.After(date) {
			billingTimer = *sub.NextBillingDate
		}

		var outcome *Outcome
		switch {
		case !phaseTimer.IsZero() && (billingTimer.IsZero() || !billingTimer.Before(phaseTimer)):
			event, err := c.entitlements.RecordPhaseChange(ctx, subscriptionID, phaseTimer)
			if err != nil {
				return outcomes, err
			}
			outcome, err = c.run(ctx, sub, phaseTimer, event)
			if err != nil {
				return outcomes, err
			}
		case !billingTimer.IsZero():
			outcome, err = c.run(ctx, sub, billingTimer, nil)
			if err != nil {
				return outcomes, err
			}
			if next := outcome.Result.NextBillingDate; next != nil && !next.After(billingTimer) {
				return append(outcomes, outcome), ierr.NewErrorf("billing date did not advance past %s", types.FormatDate(billingTimer)).
					Mark(ierr.ErrSystem)
			}
		default:
			return outcomes, nil
		}
		outcomes = append(outcomes, outcome)
	}
}

// run executes one pipeline pass: entitlement signal, reconcile and commit,
// invoice signal, then payment for a positive balance
func (c *coordinator) run(ctx context.Context, sub *entitlement.Subscription, asOf time.Time, event *entitlement.Event) (*Outcome, error) {
	asOf = types.StartOfDay(asOf)
	outcome := &Outcome{SubscriptionID: sub.ID, AsOf: asOf, Event: event}

	if event != nil {
		if err := c.notify(ctx, &publisher.Signal{
			Type:           types.SignalForEvent(event.Type),
			TenantID:       sub.TenantID,
			AccountID:      sub.AccountID,
			SubscriptionID: sub.ID,
			EventID:        event.ID,
			EffectiveDate:  event.EffectiveDate,
		}); err != nil {
			return nil, err
		}
	}

	req := ReconcileRequest{SubscriptionID: sub.ID, AsOf: asOf}
	if event != nil {
		req.TriggerEventID = event.ID
	}

	operation := func() error {
		result, err := c.reconciler.Reconcile(ctx, req)
		if err != nil {
			if ierr.IsRetryable(err) {
				c.Logger.Debugw("retrying reconciliation", "subscription_id", sub.ID, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		outcome.Result = result
		return nil
	}
	if err := backoff.Retry(operation, retryPolicy(ctx, c.Config.Reconciliation.RetryMaxElapsed)); err != nil {
		c.Logger.Errorw("reconciliation failed",
			"tenant_id", sub.TenantID,
			"subscription_id", sub.ID,
			"as_of", types.FormatDate(asOf),
			"error", err,
		)
		c.Sentry.CaptureWithTags(err, map[string]string{
			"tenant_id":       sub.TenantID,
			"subscription_id": sub.ID,
		})
		return nil, err
	}

	inv := outcome.Result.Invoice
	if inv == nil {
		return outcome, c.notify(ctx, &publisher.Signal{
			Type:           types.SignalInvoiceNull,
			TenantID:       sub.TenantID,
			AccountID:      sub.AccountID,
			SubscriptionID: sub.ID,
			EventID:        req.TriggerEventID,
			Currency:       sub.Currency,
			EffectiveDate:  asOf,
		})
	}
	outcome.Invoice = inv

	if err := c.notify(ctx, invoiceSignal(types.SignalInvoiceCreated, inv, inv.Balance, inv.Status.String())); err != nil {
		return outcome, err
	}
	if !inv.Balance.IsPositive() {
		return outcome, nil
	}

	if err := c.notify(ctx, invoiceSignal(types.SignalPaymentRequested, inv, inv.Balance, "")); err != nil {
		return outcome, err
	}
	p, err := c.payments.Collect(ctx, inv)
	if err != nil {
		c.Sentry.CaptureWithTags(err, map[string]string{
			"tenant_id":  inv.TenantID,
			"invoice_id": inv.ID,
		})
		return outcome, err
	}
	outcome.Payment = p

	result := invoiceSignal(types.SignalPaymentResult, inv, p.Amount, p.Status.String())
	result.PaymentID = p.ID
	return outcome, c.notify(ctx, result)
}

func invoiceSignal(signalType types.SignalType, inv *invoice.Invoice, amount decimal.Decimal, status string) *publisher.Signal {
	return &publisher.Signal{
		Type:           signalType,
		TenantID:       inv.TenantID,
		AccountID:      inv.AccountID,
		SubscriptionID: inv.SubscriptionID,
		EventID:        inv.TriggerEventID,
		InvoiceID:      inv.ID,
		Amount:         lo.ToPtr(amount),
		Currency:       inv.Currency,
		Status:         status,
		EffectiveDate:  inv.InvoiceDate,
	}
}

func (c *coordinator) notify(ctx context.Context, signal *publisher.Signal) error {
	if err := c.Notifier.Notify(ctx, signal); err != nil {
		c.Logger.Errorw("failed to deliver signal",
			"signal_type", signal.Type,
			"subscription_id", signal.SubscriptionID,
			"error", err,
		)
		return err
	}
	return nil
}
