package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/invoicerecon/internal/domain/billing"
	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/flexprice/invoicerecon/internal/validator"
	"github.com/samber/lo"
)

// CreateSubscriptionRequest starts a subscription on a plan
type CreateSubscriptionRequest struct {
	// TenantID defaults to the tenant of the context
	TenantID string `json:"tenant_id"`
	// SubscriptionID is generated when empty
	SubscriptionID string    `json:"subscription_id"`
	AccountID      string    `json:"account_id" validate:"required"`
	ExternalKey    string    `json:"external_key"`
	PlanName       string    `json:"plan_name" validate:"required"`
	EffectiveDate  time.Time `json:"effective_date" validate:"required"`
}

// ChangePlanRequest moves a subscription to another plan
type ChangePlanRequest struct {
	SubscriptionID string    `json:"subscription_id" validate:"required"`
	PlanName       string    `json:"plan_name" validate:"required"`
	EffectiveDate  time.Time `json:"effective_date" validate:"required"`
	// Policy overrides the configured change policy when set
	Policy types.ChangePlanPolicy `json:"policy,omitempty"`
}

// LifecycleRequest cancels, blocks or unblocks a subscription
type LifecycleRequest struct {
	SubscriptionID string    `json:"subscription_id" validate:"required"`
	EffectiveDate  time.Time `json:"effective_date" validate:"required"`
}

// EventHook is invoked after an entitlement event is committed
type EventHook func(ctx context.Context, sub *entitlement.Subscription, event *entitlement.Event) error

// EntitlementService records lifecycle transitions on subscription timelines
type EntitlementService interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*entitlement.Subscription, *entitlement.Event, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*entitlement.Event, error)
	Cancel(ctx context.Context, req LifecycleRequest) (*entitlement.Event, error)
	Block(ctx context.Context, req LifecycleRequest) (*entitlement.Event, error)
	Unblock(ctx context.Context, req LifecycleRequest) (*entitlement.Event, error)

	// RecordPhaseChange appends the marker for a phase transition that
	// already took effect. Hooks are not invoked.
	RecordPhaseChange(ctx context.Context, subscriptionID string, date time.Time) (*entitlement.Event, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*entitlement.Subscription, error)
	GetTimeline(ctx context.Context, subscriptionID string) ([]*entitlement.Event, error)
	// GetState folds the events effective on or before at
	GetState(ctx context.Context, subscriptionID string, at time.Time) (*entitlement.State, error)
	ListSubscriptions(ctx context.Context, tenantID string) ([]*entitlement.Subscription, error)
	IsPlanInUse(ctx context.Context, tenantID, planName string) (bool, error)

	RegisterHook(hook EventHook)
}

const maxRetries = 5

type entitlementService struct {
	ServiceParams
	catalog    CatalogService
	calculator *billing.Calculator
	hooks      []EventHook
}

func NewEntitlementService(params ServiceParams, catalogService CatalogService) EntitlementService {
	return &entitlementService{
		ServiceParams: params,
		catalog:       catalogService,
		calculator:    billing.NewCalculator(),
	}
}

func (s *entitlementService) RegisterHook(hook EventHook) {
	s.hooks = append(s.hooks, hook)
}

// newPlanResolutionError wraps catalog lookup failures so callers can tell
// a rejected request from a storage problem
func newPlanResolutionError(err error, planName string, date time.Time) error {
	if !ierr.IsNoCatalog(err) && !ierr.IsUnknownPlan(err) {
		return err
	}
	return ierr.WithError(err).
		WithHintf("Plan %s could not be resolved at %s", planName, types.FormatDate(date)).
		WithReportableDetails(map[string]any{
			"plan": planName,
			"date": types.FormatDate(date),
		}).
		Mark(ierr.ErrPlanResolution)
}

// resolvePlan finds the plan in the catalog version applicable at date
func (s *entitlementService) resolvePlan(ctx context.Context, tenantID, planName string, date time.Time) (*catalog.Plan, *catalog.Snapshot, error) {
	blocked, err := s.catalog.IsBlocked(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if blocked {
		return nil, nil, ierr.NewError("tenant catalog is blocked").
			WithHint("Plans cannot be resolved against a blocked catalog").
			WithReportableDetails(map[string]any{"tenant_id": tenantID}).
			Mark(ierr.ErrCatalogBlocked)
	}

	snap, err := s.catalog.Resolve(ctx, tenantID, date)
	if err != nil {
		return nil, nil, newPlanResolutionError(err, planName, date)
	}
	plan, err := catalog.PlanFor(snap, planName)
	if err != nil {
		return nil, nil, newPlanResolutionError(err, planName, date)
	}
	return plan, snap, nil
}

func (s *entitlementService) lookup(ctx context.Context, tenantID string) entitlement.PlanLookup {
	lookup := s.catalog.PlanLookup(ctx, tenantID)
	return func(planName string, date time.Time, snapshotID string) (*catalog.Plan, string, error) {
		plan, id, err := lookup(planName, date, snapshotID)
		if err != nil {
			return nil, "", newPlanResolutionError(err, planName, date)
		}
		return plan, id, nil
	}
}

func (s *entitlementService) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*entitlement.Subscription, *entitlement.Event, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, nil, err
	}
	tenantID := types.ResolveTenantID(ctx, req.TenantID)
	date := types.StartOfDay(req.EffectiveDate)

	plan, snap, err := s.resolvePlan(ctx, tenantID, req.PlanName, date)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	sub := &entitlement.Subscription{
		ID:          lo.CoalesceOrEmpty(req.SubscriptionID, types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION)),
		TenantID:    tenantID,
		AccountID:   req.AccountID,
		ExternalKey: req.ExternalKey,
		Currency:    plan.Currency,
		StartDate:   date,
		CreatedAt:   now,
	}
	event := &entitlement.Event{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT_EVENT),
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Type:           types.EntitlementEventCreate,
		EffectiveDate:  date,
		PlanName:       plan.Name,
		SnapshotID:     snap.ID,
		Sequence:       1,
		CreatedAt:      now,
	}

	state, err := entitlement.Fold([]*entitlement.Event{event}, s.lookup(ctx, tenantID), date)
	if err != nil {
		return nil, nil, err
	}
	if phase := state.Phase(); phase != nil {
		event.PhaseType = phase.Type
	}

	if err := s.EntitlementRepo.CreateSubscription(ctx, sub, event); err != nil {
		return nil, nil, err
	}

	s.Logger.Infow("subscription created",
		"tenant_id", tenantID,
		"subscription_id", sub.ID,
		"account_id", sub.AccountID,
		"plan", plan.Name,
		"snapshot_id", snap.ID,
		"start_date", types.FormatDate(date),
	)

	return sub, event, s.runHooks(ctx, sub, event)
}

func (s *entitlementService) ChangePlan(ctx context.Context, req ChangePlanRequest) (*entitlement.Event, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	policy := req.Policy
	if policy == "" {
		policy = s.Config.Reconciliation.ChangePlanPolicy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.EntitlementRepo.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	date := types.StartOfDay(req.EffectiveDate)
	if policy == types.ChangePlanPolicyEndOfTerm {
		if date, err = s.endOfTerm(ctx, sub, date); err != nil {
			return nil, err
		}
	}

	plan, snap, err := s.resolvePlan(ctx, sub.TenantID, req.PlanName, date)
	if err != nil {
		return nil, err
	}
	if !types.IsMatchingCurrency(plan.Currency, sub.Currency) {
		return nil, ierr.NewError("plan currency differs from subscription currency").
			WithHintf("Plan %s is priced in %s but the subscription bills in %s", plan.Name, plan.Currency, sub.Currency).
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"plan":            plan.Name,
			}).
			Mark(ierr.ErrValidation)
	}

	return s.appendEvent(ctx, sub, &entitlement.Event{
		Type:          types.EntitlementEventChangePlan,
		EffectiveDate: date,
		PlanName:      plan.Name,
		SnapshotID:    snap.ID,
	}, true)
}

// endOfTerm returns the end of the billing period running at date
func (s *entitlementService) endOfTerm(ctx context.Context, sub *entitlement.Subscription, date time.Time) (time.Time, error) {
	events, err := s.EntitlementRepo.ListEvents(ctx, sub.ID)
	if err != nil {
		return date, err
	}
	state, err := entitlement.Fold(events, s.lookup(ctx, sub.TenantID), date)
	if err != nil {
		return date, err
	}
	schedule, err := s.calculator.Calculate(sub, state.Segments, date)
	if err != nil {
		return date, err
	}
	if schedule.NextBillingDate == nil {
		return date, nil
	}
	return *schedule.NextBillingDate, nil
}

func (s *entitlementService) Cancel(ctx context.Context, req LifecycleRequest) (*entitlement.Event, error) {
	return s.lifecycle(ctx, req, types.EntitlementEventCancel)
}

func (s *entitlementService) Block(ctx context.Context, req LifecycleRequest) (*entitlement.Event, error) {
	return s.lifecycle(ctx, req, types.EntitlementEventBlock)
}

func (s *entitlementService) Unblock(ctx context.Context, req LifecycleRequest) (*entitlement.Event, error) {
	return s.lifecycle(ctx, req, types.EntitlementEventUnblock)
}

func (s *entitlementService) lifecycle(ctx context.Context, req LifecycleRequest, eventType types.EntitlementEventType) (*entitlement.Event, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	sub, err := s.EntitlementRepo.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return s.appendEvent(ctx, sub, &entitlement.Event{
		Type:          eventType,
		EffectiveDate: types.StartOfDay(req.EffectiveDate),
	}, true)
}

func (s *entitlementService) RecordPhaseChange(ctx context.Context, subscriptionID string, date time.Time) (*entitlement.Event, error) {
	date = types.StartOfDay(date)
	state, err := s.GetState(ctx, subscriptionID, date)
	if err != nil {
		return nil, err
	}
	if !lo.ContainsBy(state.PendingPhaseChanges, func(t time.Time) bool { return t.Equal(date) }) {
		return nil, ierr.NewErrorf("no pending phase transition on %s", types.FormatDate(date)).
			WithHint("Phase changes can only be recorded where a phase ends").
			WithReportableDetails(map[string]any{
				"subscription_id": subscriptionID,
				"date":            types.FormatDate(date),
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	sub, err := s.EntitlementRepo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return s.appendEvent(ctx, sub, &entitlement.Event{
		Type:          types.EntitlementEventPhaseChange,
		EffectiveDate: date,
	}, false)
}

// appendEvent validates the candidate against the timeline and appends it
// with compare-and-append, revalidating when a concurrent writer wins
func (s *entitlementService) appendEvent(ctx context.Context, sub *entitlement.Subscription, candidate *entitlement.Event, notify bool) (*entitlement.Event, error) {
	candidate.TenantID = sub.TenantID
	candidate.SubscriptionID = sub.ID
	lookup := s.lookup(ctx, sub.TenantID)

	operation := func() error {
		events, err := s.EntitlementRepo.ListEvents(ctx, sub.ID)
		if err != nil {
			return backoff.Permanent(err)
		}

		event := *candidate
		event.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT_EVENT)
		event.Sequence = int64(len(events)) + 1
		event.CreatedAt = time.Now().UTC()

		timeline := append(events, &event)
		if _, err := entitlement.Fold(timeline, lookup, event.EffectiveDate); err != nil {
			return backoff.Permanent(err)
		}
		// the phase is read from the timeline as it stood on the event date
		upTo := lo.Filter(timeline, func(e *entitlement.Event, _ int) bool {
			return !e.EffectiveDate.After(event.EffectiveDate)
		})
		state, err := entitlement.Fold(upTo, lookup, event.EffectiveDate)
		if err != nil {
			return backoff.Permanent(err)
		}
		if phase := state.Phase(); phase != nil && event.Type != types.EntitlementEventCancel {
			event.PhaseType = phase.Type
		}

		if err := s.EntitlementRepo.AppendEvent(ctx, &event, int64(len(events))); err != nil {
			if ierr.IsVersionConflict(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		*candidate = event
		return nil
	}

	if err := backoff.Retry(operation, retryPolicy(ctx, s.Config.Reconciliation.RetryMaxElapsed)); err != nil {
		return nil, err
	}

	s.Logger.Infow("entitlement event recorded",
		"tenant_id", sub.TenantID,
		"subscription_id", sub.ID,
		"event_id", candidate.ID,
		"event_type", candidate.Type,
		"effective_date", types.FormatDate(candidate.EffectiveDate),
		"plan", candidate.PlanName,
	)

	if !notify {
		return candidate, nil
	}
	return candidate, s.runHooks(ctx, sub, candidate)
}

// retryPolicy backs off exponentially, giving up after the configured
// elapsed time or maxRetries attempts, whichever comes first
func retryPolicy(ctx context.Context, maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = maxElapsed
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

// runHooks invokes every hook, the event stays committed whatever they return
func (s *entitlementService) runHooks(ctx context.Context, sub *entitlement.Subscription, event *entitlement.Event) error {
	var firstErr error
	for _, hook := range s.hooks {
		if err := hook(ctx, sub, event); err != nil {
			s.Logger.Errorw("entitlement hook failed",
				"subscription_id", sub.ID,
				"event_id", event.ID,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *entitlementService) GetSubscription(ctx context.Context, subscriptionID string) (*entitlement.Subscription, error) {
	return s.EntitlementRepo.GetSubscription(ctx, subscriptionID)
}

func (s *entitlementService) GetTimeline(ctx context.Context, subscriptionID string) ([]*entitlement.Event, error) {
	events, err := s.EntitlementRepo.ListEvents(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return entitlement.SortEvents(events), nil
}

func (s *entitlementService) GetState(ctx context.Context, subscriptionID string, at time.Time) (*entitlement.State, error) {
	sub, err := s.EntitlementRepo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	events, err := s.EntitlementRepo.ListEvents(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	at = types.StartOfDay(at)
	effective := lo.Filter(events, func(e *entitlement.Event, _ int) bool {
		return !e.EffectiveDate.After(at)
	})
	return entitlement.Fold(effective, s.lookup(ctx, sub.TenantID), at)
}

func (s *entitlementService) ListSubscriptions(ctx context.Context, tenantID string) ([]*entitlement.Subscription, error) {
	return s.EntitlementRepo.ListSubscriptions(ctx, tenantID)
}

func (s *entitlementService) IsPlanInUse(ctx context.Context, tenantID, planName string) (bool, error) {
	return planInUse(ctx, s.EntitlementRepo, tenantID, planName)
}

// planInUse reports whether a subscription that has not been cancelled
// currently references planName
func planInUse(ctx context.Context, repo entitlement.Repository, tenantID, planName string) (bool, error) {
	subs, err := repo.ListSubscriptions(ctx, tenantID)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		events, err := repo.ListEvents(ctx, sub.ID)
		if err != nil {
			return false, err
		}

		current := ""
		cancelled := false
		for _, e := range entitlement.SortEvents(events) {
			if e.Type.RequiresPlan() {
				current = e.PlanName
			}
			if e.Type == types.EntitlementEventCancel {
				cancelled = true
			}
		}
		if !cancelled && current == planName {
			return true, nil
		}
	}
	return false, nil
}
