package entitlement

import (
	"testing"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type FoldSuite struct {
	suite.Suite
	plans map[string]*catalog.Plan
	seq   int64
}

func TestFold(t *testing.T) {
	suite.Run(t, new(FoldSuite))
}

func (s *FoldSuite) SetupTest() {
	s.seq = 0
	s.plans = map[string]*catalog.Plan{}
	for _, d := range []struct {
		name  string
		trial int
		price int64
	}{
		{"pistol-monthly", 14, 10},
		{"shotgun-monthly", 0, 20},
		{"rifle-monthly", 30, 30},
	} {
		s.plans[d.name] = (&catalog.SimplePlanDescriptor{
			PlanName:      d.name,
			ProductName:   "Gun",
			Category:      types.PRODUCT_CATEGORY_BASE,
			Currency:      "USD",
			Amount:        decimal.NewFromInt(d.price),
			BillingPeriod: types.BILLING_PERIOD_MONTHLY,
			TrialLength:   d.trial,
			TrialTimeUnit: types.DURATION_UNIT_DAYS,
		}).ToPlan()
	}
}

func (s *FoldSuite) lookup(name string, _ time.Time, _ string) (*catalog.Plan, string, error) {
	p, ok := s.plans[name]
	if !ok {
		return nil, "", catalog.NewUnknownPlanError("v1", name)
	}
	return p, "v1", nil
}

func (s *FoldSuite) event(t types.EntitlementEventType, date time.Time, plan string) *Event {
	s.seq++
	return &Event{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT_EVENT),
		SubscriptionID: "subs_1",
		Type:           t,
		EffectiveDate:  date,
		PlanName:       plan,
		SnapshotID:     "v1",
		Sequence:       s.seq,
	}
}

func (s *FoldSuite) TestTrialBeforeTransition() {
	events := []*Event{s.event(types.EntitlementEventCreate, types.Date(2024, time.March, 1), "pistol-monthly")}

	st, err := Fold(events, s.lookup, types.Date(2024, time.March, 10))
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStateActive, st.Status)
	s.Equal(0, st.PhaseIndex)
	s.Require().Len(st.Segments, 1)
	s.Nil(st.Segments[0].End)
	s.True(st.Segments[0].PhaseEntered)
	s.Require().NotNil(st.NextPhaseChange)
	s.Equal(types.Date(2024, time.March, 15), *st.NextPhaseChange)
	s.Empty(st.PendingPhaseChanges)
}

func (s *FoldSuite) TestImpliedTransitionAndMarker() {
	events := []*Event{s.event(types.EntitlementEventCreate, types.Date(2024, time.March, 1), "pistol-monthly")}

	st, err := Fold(events, s.lookup, types.Date(2024, time.March, 20))
	s.Require().NoError(err)
	s.Equal(1, st.PhaseIndex)
	s.Require().Len(st.Segments, 2)
	s.Equal(types.Date(2024, time.March, 15), *st.Segments[0].End)
	evergreen := st.Segments[1]
	s.Equal(types.Date(2024, time.March, 15), evergreen.Start)
	s.Equal(types.Date(2024, time.March, 15), evergreen.Anchor)
	s.True(evergreen.PhaseEntered)
	s.Nil(st.NextPhaseChange)
	s.Equal([]time.Time{types.Date(2024, time.March, 15)}, st.PendingPhaseChanges)

	events = append(events, s.event(types.EntitlementEventPhaseChange, types.Date(2024, time.March, 15), ""))
	st, err = Fold(events, s.lookup, types.Date(2024, time.March, 20))
	s.Require().NoError(err)
	s.Empty(st.PendingPhaseChanges)
	s.Len(st.Segments, 2)
}

func (s *FoldSuite) TestChangeIntoTrialPlanMovesAnchorToEvergreenStart() {
	march := types.Date(2024, time.March, 1)
	change := types.Date(2024, time.April, 10)
	events := []*Event{
		s.event(types.EntitlementEventCreate, march, "shotgun-monthly"),
		s.event(types.EntitlementEventChangePlan, change, "pistol-monthly"),
	}

	st, err := Fold(events, s.lookup, types.Date(2024, time.April, 20))
	s.Require().NoError(err)
	s.Require().Len(st.Segments, 2)

	before := st.Segments[0]
	s.Equal("shotgun-monthly", before.Plan.Name)
	s.Equal(march, before.Anchor)

	// phases run from the subscription start, so the trial of the new plan
	// is already over and its evergreen phase began on March 15
	after := st.Segments[1]
	s.Equal("pistol-monthly", after.Plan.Name)
	s.Equal(change, after.Start)
	s.Equal(1, after.PhaseIndex)
	s.Equal(types.Date(2024, time.March, 15), after.PhaseStart)
	s.Equal(types.Date(2024, time.March, 15), after.Anchor)
	s.False(after.PhaseEntered)
	s.Equal(types.Date(2024, time.March, 15), st.Anchor)
}

func (s *FoldSuite) TestChangePlanAtStartReplacesSegment() {
	june := types.Date(2024, time.June, 1)
	events := []*Event{
		s.event(types.EntitlementEventCreate, june, "shotgun-monthly"),
		s.event(types.EntitlementEventChangePlan, june, "rifle-monthly"),
	}

	st, err := Fold(events, s.lookup, june)
	s.Require().NoError(err)
	s.Require().Len(st.Segments, 1)
	s.Equal("rifle-monthly", st.Segments[0].Plan.Name)
	s.Equal(june, st.Segments[0].Start)
	s.Equal(june, st.Segments[0].Anchor)
	s.True(st.Segments[0].PhaseEntered)
}

func (s *FoldSuite) TestChangePlanMidCycleKeepsAnchor() {
	events := []*Event{
		s.event(types.EntitlementEventCreate, types.Date(2024, time.June, 1), "shotgun-monthly"),
		s.event(types.EntitlementEventChangePlan, types.Date(2024, time.June, 15), "rifle-monthly"),
	}
	// rifle has a 30 day trial counted from the subscription start
	st, err := Fold(events, s.lookup, types.Date(2024, time.June, 20))
	s.Require().NoError(err)
	s.Require().Len(st.Segments, 2)
	s.Equal("shotgun-monthly", st.Segments[0].Plan.Name)
	s.Equal(types.Date(2024, time.June, 15), *st.Segments[0].End)

	rifle := st.Segments[1]
	s.Equal("rifle-monthly", rifle.Plan.Name)
	s.Equal(0, rifle.PhaseIndex)
	s.Equal(types.Date(2024, time.June, 1), rifle.PhaseStart)
	s.False(rifle.PhaseEntered)
	s.Equal(types.Date(2024, time.June, 1), rifle.Anchor)
	s.Require().NotNil(st.NextPhaseChange)
	s.Equal(types.Date(2024, time.July, 1), *st.NextPhaseChange)
}

func (s *FoldSuite) TestCancelClosesTimeline() {
	events := []*Event{
		s.event(types.EntitlementEventCreate, types.Date(2024, time.June, 1), "shotgun-monthly"),
		s.event(types.EntitlementEventCancel, types.Date(2024, time.June, 11), ""),
	}
	st, err := Fold(events, s.lookup, types.Date(2024, time.December, 1))
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStateCancelled, st.Status)
	s.Require().Len(st.Segments, 1)
	s.Equal(types.Date(2024, time.June, 11), *st.Segments[0].End)
	s.Nil(st.NextPhaseChange)

	events = append(events, s.event(types.EntitlementEventChangePlan, types.Date(2024, time.June, 20), "rifle-monthly"))
	_, err = Fold(events, s.lookup, types.Date(2024, time.December, 1))
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *FoldSuite) TestBlockedTimeHasNoSegment() {
	events := []*Event{
		s.event(types.EntitlementEventCreate, types.Date(2024, time.June, 1), "shotgun-monthly"),
		s.event(types.EntitlementEventBlock, types.Date(2024, time.June, 10), ""),
		s.event(types.EntitlementEventUnblock, types.Date(2024, time.June, 20), ""),
	}
	st, err := Fold(events, s.lookup, types.Date(2024, time.June, 25))
	s.Require().NoError(err)
	s.False(st.Blocked)
	s.Require().Len(st.Segments, 2)
	s.Equal(types.Date(2024, time.June, 10), *st.Segments[0].End)
	s.Equal(types.Date(2024, time.June, 20), st.Segments[1].Start)
	s.Equal(types.Date(2024, time.June, 1), st.Segments[1].Anchor)
	s.False(st.Segments[1].PhaseEntered)
}

func (s *FoldSuite) TestEventBeforeCreateRejected() {
	events := []*Event{
		s.event(types.EntitlementEventCreate, types.Date(2024, time.June, 1), "shotgun-monthly"),
		s.event(types.EntitlementEventCancel, types.Date(2024, time.May, 1), ""),
	}
	_, err := Fold(events, s.lookup, types.Date(2024, time.June, 25))
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *FoldSuite) TestUnknownPlanSurfaces() {
	events := []*Event{s.event(types.EntitlementEventCreate, types.Date(2024, time.June, 1), "bazooka")}
	_, err := Fold(events, s.lookup, types.Date(2024, time.June, 25))
	s.Require().Error(err)
	s.True(ierr.IsUnknownPlan(err))
}

func TestSortEventsUsesSequenceForSameDay(t *testing.T) {
	day := types.Date(2024, time.June, 1)
	events := []*Event{
		{ID: "b", EffectiveDate: day, Sequence: 2},
		{ID: "c", EffectiveDate: day.AddDate(0, 0, -1), Sequence: 3},
		{ID: "a", EffectiveDate: day, Sequence: 1},
	}
	sorted := SortEvents(events)
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
	// input untouched
	assert.Equal(t, "b", events[0].ID)
}
