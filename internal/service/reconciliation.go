package service

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/billing"
	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
)

// ReconcileRequest asks for a subscription's invoices to be brought in line
// with its timeline as of a date
type ReconcileRequest struct {
	SubscriptionID string    `json:"subscription_id" validate:"required"`
	AsOf           time.Time `json:"as_of" validate:"required"`
	// TriggerEventID is the entitlement event that caused the run, empty for
	// clock driven runs
	TriggerEventID string `json:"trigger_event_id,omitempty"`
}

// Result is the delta between expected charges and what was already invoiced
type Result struct {
	SubscriptionID string
	AccountID      string
	TenantID       string
	TriggerEventID string
	AsOf           time.Time
	Currency       string
	// Items are ordered by start date, repairs before charges
	Items           []*invoice.InvoiceItem
	NextBillingDate *time.Time
	// Invoice is set when Reconcile committed the items
	Invoice *invoice.Invoice
}

// IsEmpty reports whether the run found nothing to invoice
func (r *Result) IsEmpty() bool {
	return len(r.Items) == 0
}

// ReconciliationService diffs expected charges against committed invoices
type ReconciliationService interface {
	// Reconcile computes the delta and commits it as an invoice. Only one run
	// per subscription may be in flight, others fail with
	// ErrReconciliationConflict.
	Reconcile(ctx context.Context, req ReconcileRequest) (*Result, error)
	// Preview computes the delta without committing anything
	Preview(ctx context.Context, req ReconcileRequest) (*Result, error)
}

type reconciliationService struct {
	ServiceParams
	catalog    CatalogService
	invoices   InvoiceService
	calculator *billing.Calculator
	running    *keyedMutex
}

func NewReconciliationService(params ServiceParams, catalogService CatalogService, invoiceService InvoiceService) ReconciliationService {
	return &reconciliationService{
		ServiceParams: params,
		catalog:       catalogService,
		invoices:      invoiceService,
		calculator:    billing.NewCalculator(),
		running:       newKeyedMutex(),
	}
}

func (s *reconciliationService) Reconcile(ctx context.Context, req ReconcileRequest) (*Result, error) {
	if !s.running.TryLock(req.SubscriptionID) {
		return nil, ierr.NewError("reconciliation already running").
			WithHintf("Subscription %s is being reconciled, retry once it completes", req.SubscriptionID).
			WithReportableDetails(map[string]any{"subscription_id": req.SubscriptionID}).
			Mark(ierr.ErrReconciliationConflict)
	}
	defer s.running.Unlock(req.SubscriptionID)

	span, ctx := s.Sentry.StartReconciliationSpan(ctx, "subscription", req.AsOf, map[string]interface{}{
		"subscription_id":  req.SubscriptionID,
		"trigger_event_id": req.TriggerEventID,
	})
	if span != nil {
		defer span.Finish()
	}

	result, err := s.compute(ctx, req)
	if err != nil {
		return nil, err
	}

	if !result.IsEmpty() {
		inv, err := s.invoices.Commit(ctx, &CommitRequest{
			TenantID:       result.TenantID,
			AccountID:      result.AccountID,
			SubscriptionID: result.SubscriptionID,
			Currency:       result.Currency,
			TriggerEventID: result.TriggerEventID,
			InvoiceDate:    result.AsOf,
			Items:          result.Items,
		})
		if err != nil {
			return nil, err
		}
		result.Invoice = inv
	}

	if err := s.EntitlementRepo.UpdateNextBillingDate(ctx, result.SubscriptionID, result.NextBillingDate); err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription reconciled",
		"tenant_id", result.TenantID,
		"subscription_id", result.SubscriptionID,
		"as_of", types.FormatDate(result.AsOf),
		"items", len(result.Items),
		"next_billing_date", formatOptionalDate(result.NextBillingDate),
	)
	return result, nil
}

func (s *reconciliationService) Preview(ctx context.Context, req ReconcileRequest) (*Result, error) {
	return s.compute(ctx, req)
}

func (s *reconciliationService) compute(ctx context.Context, req ReconcileRequest) (*Result, error) {
	asOf := types.StartOfDay(req.AsOf)

	sub, err := s.EntitlementRepo.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	blocked, err := s.catalog.IsBlocked(ctx, sub.TenantID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ierr.NewError("tenant catalog is blocked").
			WithHint("Reconciliation is suspended until the catalog is repaired").
			WithReportableDetails(map[string]any{
				"tenant_id":       sub.TenantID,
				"subscription_id": sub.ID,
			}).
			Mark(ierr.ErrCatalogBlocked)
	}

	events, err := s.EntitlementRepo.ListEvents(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	state, err := entitlement.Fold(events, s.catalog.PlanLookup(ctx, sub.TenantID), asOf)
	if err != nil {
		return nil, err
	}
	if err := s.checkCurrency(ctx, sub, state.Segments); err != nil {
		return nil, err
	}

	schedule, err := s.calculator.Calculate(sub, state.Segments, asOf)
	if err != nil {
		return nil, err
	}

	existing, err := s.InvoiceRepo.ItemsOverlapping(ctx, sub.ID, sub.StartDate, asOf)
	if err != nil {
		return nil, err
	}

	return &Result{
		SubscriptionID:  sub.ID,
		AccountID:       sub.AccountID,
		TenantID:        sub.TenantID,
		TriggerEventID:  req.TriggerEventID,
		AsOf:            asOf,
		Currency:        sub.Currency,
		Items:           diff(schedule.Intervals, invoice.LiveCharges(existing)),
		NextBillingDate: schedule.NextBillingDate,
	}, nil
}

// checkCurrency blocks the tenant catalog when a plan the timeline relies on
// is priced in a currency other than the subscription's
func (s *reconciliationService) checkCurrency(ctx context.Context, sub *entitlement.Subscription, segments []*entitlement.Segment) error {
	for _, seg := range segments {
		if types.IsMatchingCurrency(seg.Plan.Currency, sub.Currency) {
			continue
		}
		reason := "plan " + seg.Plan.Name + " priced in " + seg.Plan.Currency + " for a " + sub.Currency + " subscription"
		if err := s.catalog.Block(ctx, sub.TenantID, reason); err != nil {
			return err
		}
		return ierr.NewError("catalog currency mismatch").
			WithHintf("Plan %s is priced in %s but subscription %s bills in %s", seg.Plan.Name, seg.Plan.Currency, sub.ID, sub.Currency).
			WithReportableDetails(map[string]any{
				"tenant_id":       sub.TenantID,
				"subscription_id": sub.ID,
				"plan":            seg.Plan.Name,
				"snapshot_id":     seg.SnapshotID,
			}).
			Mark(ierr.ErrCatalogCorrupted)
	}
	return nil
}

// diff matches expected intervals with live invoiced charges by charge key.
// Unmatched intervals become new charges and unmatched charges are reversed.
func diff(expected []*billing.Interval, live []*invoice.InvoiceItem) []*invoice.InvoiceItem {
	unmatched := make(map[string][]*invoice.InvoiceItem, len(live))
	for _, item := range live {
		unmatched[item.Key()] = append(unmatched[item.Key()], item)
	}

	var charges []*invoice.InvoiceItem
	for _, interval := range expected {
		key := interval.Key()
		if matches := unmatched[key]; len(matches) > 0 {
			unmatched[key] = matches[1:]
			continue
		}
		charges = append(charges, &invoice.InvoiceItem{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
			SubscriptionID: interval.SubscriptionID,
			Type:           interval.Type,
			StartDate:      interval.Start,
			EndDate:        interval.End,
			PlanName:       interval.PlanName,
			PhaseType:      interval.PhaseType,
			SnapshotID:     interval.SnapshotID,
			Amount:         interval.Amount,
			Currency:       interval.Currency,
		})
	}

	var repairs []*invoice.InvoiceItem
	for _, item := range live {
		stale := unmatched[item.Key()]
		if !lo.Contains(stale, item) {
			continue
		}
		repairs = append(repairs, &invoice.InvoiceItem{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
			SubscriptionID: item.SubscriptionID,
			Type:           types.InvoiceItemTypeRepairAdj,
			StartDate:      item.StartDate,
			EndDate:        item.EndDate,
			PlanName:       item.PlanName,
			PhaseType:      item.PhaseType,
			SnapshotID:     item.SnapshotID,
			Amount:         item.Amount.Neg(),
			Currency:       item.Currency,
			LinkedItemID:   item.ID,
		})
	}

	items := append(repairs, charges...)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.Type == types.InvoiceItemTypeRepairAdj && b.Type != types.InvoiceItemTypeRepairAdj
	})
	return items
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return types.FormatDate(*t)
}
