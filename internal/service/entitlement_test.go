package service

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/testutil"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/stretchr/testify/suite"
)

type EntitlementServiceSuite struct {
	testutil.BaseServiceTestSuite
	engine *engine
	jan    time.Time
}

func TestEntitlementService(t *testing.T) {
	suite.Run(t, new(EntitlementServiceSuite))
}

func (s *EntitlementServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.engine = newEngine(&s.BaseServiceTestSuite, false)
	s.jan = types.Date(2024, time.January, 1)

	s.Require().NoError(s.engine.catalog.AddSnapshot(s.GetContext(), types.DefaultTenantID,
		testutil.Snapshot(s.jan,
			testutil.MonthlyPlan("basic", "USD", 0, "10"),
			testutil.MonthlyPlan("pro", "USD", 0, "20"),
			testutil.MonthlyPlan("trial", "USD", 14, "10"),
			testutil.MonthlyPlan("euro", "EUR", 0, "10"))))
}

func (s *EntitlementServiceSuite) create(plan string, date time.Time) *entitlement.Subscription {
	sub, _, err := s.engine.entitlements.CreateSubscription(s.GetContext(), CreateSubscriptionRequest{
		AccountID:     "acct_1",
		PlanName:      plan,
		EffectiveDate: date,
	})
	s.Require().NoError(err)
	return sub
}

func (s *EntitlementServiceSuite) TestCreateSubscription() {
	sub, event, err := s.engine.entitlements.CreateSubscription(s.GetContext(), CreateSubscriptionRequest{
		AccountID:     "acct_1",
		ExternalKey:   "ext-1",
		PlanName:      "trial",
		EffectiveDate: s.jan.Add(13 * time.Hour),
	})
	s.Require().NoError(err)

	s.Equal(types.DefaultTenantID, sub.TenantID)
	s.Equal("USD", sub.Currency)
	s.Equal(s.jan, sub.StartDate)
	s.Equal(types.EntitlementEventCreate, event.Type)
	s.Equal(int64(1), event.Sequence)
	s.Equal(s.jan, event.EffectiveDate)
	s.Equal(types.PHASE_TYPE_TRIAL, event.PhaseType)
	s.NotEmpty(event.SnapshotID)

	timeline, err := s.engine.entitlements.GetTimeline(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Len(timeline, 1)
}

func (s *EntitlementServiceSuite) TestCreateRejectsUnresolvablePlans() {
	testCases := []struct {
		name    string
		plan    string
		date    time.Time
		isCause func(error) bool
	}{
		{
			name:    "unknown_plan",
			plan:    "missing",
			date:    s.jan,
			isCause: ierr.IsUnknownPlan,
		},
		{
			name:    "before_first_catalog",
			plan:    "basic",
			date:    types.Date(2023, time.December, 1),
			isCause: ierr.IsNoCatalog,
		},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, _, err := s.engine.entitlements.CreateSubscription(s.GetContext(), CreateSubscriptionRequest{
				AccountID:     "acct_1",
				PlanName:      tc.plan,
				EffectiveDate: tc.date,
			})
			s.True(ierr.IsPlanResolution(err))
			s.True(tc.isCause(err))
		})
	}

	subs, err := s.engine.entitlements.ListSubscriptions(s.GetContext(), types.DefaultTenantID)
	s.NoError(err)
	s.Empty(subs)

	_, _, err = s.engine.entitlements.CreateSubscription(s.GetContext(), CreateSubscriptionRequest{PlanName: "basic"})
	s.True(ierr.IsValidation(err))
}

func (s *EntitlementServiceSuite) TestChangePlanUnknownPlanLeavesTimelineUntouched() {
	sub := s.create("basic", s.jan)

	_, err := s.engine.entitlements.ChangePlan(s.GetContext(), ChangePlanRequest{
		SubscriptionID: sub.ID,
		PlanName:       "missing",
		EffectiveDate:  types.Date(2024, time.February, 1),
	})
	s.True(ierr.IsPlanResolution(err))

	_, err = s.engine.entitlements.ChangePlan(s.GetContext(), ChangePlanRequest{
		SubscriptionID: sub.ID,
		PlanName:       "euro",
		EffectiveDate:  types.Date(2024, time.February, 1),
	})
	s.True(ierr.IsValidation(err))

	timeline, err := s.engine.entitlements.GetTimeline(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Len(timeline, 1)
}

func (s *EntitlementServiceSuite) TestStateMachine() {
	ctx := s.GetContext()
	sub := s.create("basic", s.jan)
	feb := types.Date(2024, time.February, 1)

	_, err := s.engine.entitlements.Unblock(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: feb})
	s.True(ierr.IsInvalidOperation(err), "unblock without block")

	_, err = s.engine.entitlements.ChangePlan(ctx, ChangePlanRequest{
		SubscriptionID: sub.ID,
		PlanName:       "pro",
		EffectiveDate:  types.Date(2023, time.December, 15),
	})
	s.True(ierr.IsPlanResolution(err) || ierr.IsInvalidOperation(err), "change before creation")

	_, err = s.engine.entitlements.Block(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: feb})
	s.NoError(err)
	_, err = s.engine.entitlements.Block(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: feb})
	s.True(ierr.IsInvalidOperation(err), "double block")
	_, err = s.engine.entitlements.Unblock(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: types.Date(2024, time.February, 10)})
	s.NoError(err)

	march := types.Date(2024, time.March, 1)
	_, err = s.engine.entitlements.Cancel(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: march})
	s.NoError(err)

	_, err = s.engine.entitlements.ChangePlan(ctx, ChangePlanRequest{
		SubscriptionID: sub.ID,
		PlanName:       "pro",
		EffectiveDate:  types.Date(2024, time.March, 5),
	})
	s.True(ierr.IsInvalidOperation(err), "change after cancel")

	_, err = s.engine.entitlements.Cancel(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: types.Date(2024, time.March, 5)})
	s.True(ierr.IsInvalidOperation(err), "double cancel")

	timeline, err := s.engine.entitlements.GetTimeline(ctx, sub.ID)
	s.NoError(err)
	s.Len(timeline, 4)
	for i, e := range timeline {
		s.Equal(int64(i+1), e.Sequence)
	}

	_, err = s.engine.entitlements.Cancel(ctx, LifecycleRequest{SubscriptionID: "subs_missing", EffectiveDate: march})
	s.True(ierr.IsNotFound(err))
}

func (s *EntitlementServiceSuite) TestGetState() {
	ctx := s.GetContext()
	sub := s.create("trial", s.jan)
	_, err := s.engine.entitlements.Cancel(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: types.Date(2024, time.March, 1)})
	s.Require().NoError(err)

	state, err := s.engine.entitlements.GetState(ctx, sub.ID, types.Date(2024, time.January, 5))
	s.NoError(err)
	s.Equal(types.SubscriptionStateActive, state.Status)
	s.Equal(types.PHASE_TYPE_TRIAL, state.Phase().Type)
	s.Require().NotNil(state.NextPhaseChange)
	s.Equal(types.Date(2024, time.January, 15), *state.NextPhaseChange)

	state, err = s.engine.entitlements.GetState(ctx, sub.ID, types.Date(2024, time.February, 1))
	s.NoError(err)
	s.Equal(types.PHASE_TYPE_EVERGREEN, state.Phase().Type)
	s.Equal([]time.Time{types.Date(2024, time.January, 15)}, state.PendingPhaseChanges)

	state, err = s.engine.entitlements.GetState(ctx, sub.ID, types.Date(2024, time.April, 1))
	s.NoError(err)
	s.Equal(types.SubscriptionStateCancelled, state.Status)
}

func (s *EntitlementServiceSuite) TestRecordPhaseChange() {
	ctx := s.GetContext()
	sub := s.create("trial", s.jan)

	event, err := s.engine.entitlements.RecordPhaseChange(ctx, sub.ID, types.Date(2024, time.January, 15))
	s.Require().NoError(err)
	s.Equal(types.EntitlementEventPhaseChange, event.Type)
	s.Equal(types.PHASE_TYPE_EVERGREEN, event.PhaseType)

	state, err := s.engine.entitlements.GetState(ctx, sub.ID, types.Date(2024, time.February, 1))
	s.NoError(err)
	s.Empty(state.PendingPhaseChanges)
}

func (s *EntitlementServiceSuite) TestChangePlanEndOfTerm() {
	ctx := s.GetContext()
	sub := s.create("basic", s.jan)

	event, err := s.engine.entitlements.ChangePlan(ctx, ChangePlanRequest{
		SubscriptionID: sub.ID,
		PlanName:       "pro",
		EffectiveDate:  types.Date(2024, time.January, 15),
		Policy:         types.ChangePlanPolicyEndOfTerm,
	})
	s.Require().NoError(err)
	s.Equal(types.Date(2024, time.February, 1), event.EffectiveDate)
	s.Equal("pro", event.PlanName)

	event, err = s.engine.entitlements.ChangePlan(ctx, ChangePlanRequest{
		SubscriptionID: sub.ID,
		PlanName:       "basic",
		EffectiveDate:  types.Date(2024, time.February, 10),
	})
	s.Require().NoError(err)
	s.Equal(types.Date(2024, time.February, 10), event.EffectiveDate, "configured policy is immediate")
}

func (s *EntitlementServiceSuite) TestHooksRunAfterCommit() {
	ctx := s.GetContext()
	var seen []types.EntitlementEventType
	s.engine.entitlements.RegisterHook(func(_ context.Context, _ *entitlement.Subscription, e *entitlement.Event) error {
		seen = append(seen, e.Type)
		if e.Type == types.EntitlementEventCancel {
			return ierr.NewError("downstream unavailable").Mark(ierr.ErrSystem)
		}
		return nil
	})

	sub := s.create("basic", s.jan)
	_, err := s.engine.entitlements.RecordPhaseChange(ctx, sub.ID, s.jan)
	s.True(ierr.IsInvalidOperation(err), "no phase transition happens on the start date")

	event, err := s.engine.entitlements.Cancel(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: types.Date(2024, time.February, 1)})
	s.Error(err)
	s.Require().NotNil(event, "the event stays committed when a hook fails")

	timeline, err := s.engine.entitlements.GetTimeline(ctx, sub.ID)
	s.NoError(err)
	s.Len(timeline, 2)
	s.Equal([]types.EntitlementEventType{types.EntitlementEventCreate, types.EntitlementEventCancel}, seen)
}

func (s *EntitlementServiceSuite) TestIsPlanInUse() {
	ctx := s.GetContext()
	sub := s.create("basic", s.jan)

	inUse, err := s.engine.entitlements.IsPlanInUse(ctx, types.DefaultTenantID, "basic")
	s.NoError(err)
	s.True(inUse)

	_, err = s.engine.entitlements.ChangePlan(ctx, ChangePlanRequest{SubscriptionID: sub.ID, PlanName: "pro", EffectiveDate: types.Date(2024, time.February, 1)})
	s.Require().NoError(err)

	inUse, err = s.engine.entitlements.IsPlanInUse(ctx, types.DefaultTenantID, "basic")
	s.NoError(err)
	s.False(inUse)

	_, err = s.engine.entitlements.Cancel(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: types.Date(2024, time.March, 1)})
	s.Require().NoError(err)
	inUse, err = s.engine.entitlements.IsPlanInUse(ctx, types.DefaultTenantID, "pro")
	s.NoError(err)
	s.False(inUse)
}

func (s *EntitlementServiceSuite) TestBlockedCatalogRejectsNewEntitlements() {
	s.Require().NoError(s.engine.catalog.Block(s.GetContext(), types.DefaultTenantID, "corrupted"))

	_, _, err := s.engine.entitlements.CreateSubscription(s.GetContext(), CreateSubscriptionRequest{
		AccountID:     "acct_1",
		PlanName:      "basic",
		EffectiveDate: s.jan,
	})
	s.True(ierr.IsCatalogBlocked(err))
}
