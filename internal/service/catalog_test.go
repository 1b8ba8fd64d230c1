package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flexprice/invoicerecon/internal/cache"
	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/testutil"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type CatalogServiceSuite struct {
	testutil.BaseServiceTestSuite
	engine *engine
}

func TestCatalogService(t *testing.T) {
	suite.Run(t, new(CatalogServiceSuite))
}

func (s *CatalogServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.engine = newEngine(&s.BaseServiceTestSuite, false)
}

func (s *CatalogServiceSuite) TestResolve() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)
	feb := types.Date(2024, time.February, 1)

	v1 := testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "10"))
	v2 := testutil.Snapshot(feb, testutil.MonthlyPlan("basic", "USD", 0, "20"))
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID, v1))
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID, v2))
	s.Equal(1, v1.Version)
	s.Equal(2, v2.Version)

	testCases := []struct {
		name string
		date time.Time
		want *catalog.Snapshot
	}{
		{name: "first_day_of_v1", date: jan, want: v1},
		{name: "inside_v1", date: types.Date(2024, time.January, 20), want: v1},
		{name: "first_day_of_v2", date: feb, want: v2},
		{name: "long_after_v2", date: types.Date(2025, time.June, 1), want: v2},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			got, err := s.engine.catalog.Resolve(ctx, types.DefaultTenantID, tc.date)
			s.NoError(err)
			s.Equal(tc.want.ID, got.ID)
		})
	}

	_, err := s.engine.catalog.Resolve(ctx, types.DefaultTenantID, types.Date(2023, time.December, 31))
	s.True(ierr.IsNoCatalog(err))
}

func (s *CatalogServiceSuite) TestRetroactiveSnapshotInvalidatesResolution() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "10"))))

	// warm the cache
	before, err := s.engine.catalog.Resolve(ctx, types.DefaultTenantID, types.Date(2024, time.January, 15))
	s.Require().NoError(err)

	retro := testutil.Snapshot(types.Date(2024, time.January, 10), testutil.MonthlyPlan("basic", "USD", 0, "12"))
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID, retro))

	after, err := s.engine.catalog.Resolve(ctx, types.DefaultTenantID, types.Date(2024, time.January, 15))
	s.Require().NoError(err)
	s.NotEqual(before.ID, after.ID)
	s.Equal(retro.ID, after.ID)

	snapshots, err := s.engine.catalog.ListSnapshots(ctx, types.DefaultTenantID)
	s.NoError(err)
	s.Len(snapshots, 2)
}

func (s *CatalogServiceSuite) TestSameDayVersionsResolveToLatest() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "10"))))
	latest := testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "11"))
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID, latest))

	got, err := s.engine.catalog.Resolve(ctx, types.DefaultTenantID, jan)
	s.NoError(err)
	s.Equal(latest.ID, got.ID)
}

// pausingCatalogRepo holds the first armed List call after it has read the
// store, until release is closed
type pausingCatalogRepo struct {
	catalog.Repository
	armed   atomic.Bool
	listed  chan struct{}
	release chan struct{}
}

func newPausingCatalogRepo(inner catalog.Repository) *pausingCatalogRepo {
	return &pausingCatalogRepo{
		Repository: inner,
		listed:     make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (r *pausingCatalogRepo) List(ctx context.Context, tenantID string) ([]*catalog.Snapshot, error) {
	snapshots, err := r.Repository.List(ctx, tenantID)
	if r.armed.CompareAndSwap(true, false) {
		close(r.listed)
		<-r.release
	}
	return snapshots, err
}

func (s *CatalogServiceSuite) TestResolveRacingAppendDoesNotCacheStaleCatalog() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)
	mid := types.Date(2024, time.January, 15)

	repo := newPausingCatalogRepo(s.GetStores().CatalogRepo)
	params := s.engine.params
	params.CatalogRepo = repo
	svc := NewCatalogService(params)

	s.Require().NoError(svc.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "10"))))

	repo.armed.Store(true)
	type resolved struct {
		snap *catalog.Snapshot
		err  error
	}
	inFlight := make(chan resolved, 1)
	go func() {
		snap, err := svc.Resolve(ctx, types.DefaultTenantID, mid)
		inFlight <- resolved{snap: snap, err: err}
	}()

	select {
	case <-repo.listed:
	case <-time.After(3 * time.Second):
		s.FailNow("resolve never reached the repository")
	}

	// appended while the in-flight resolve still holds the old list
	retro := testutil.Snapshot(types.Date(2024, time.January, 10), testutil.MonthlyPlan("basic", "USD", 0, "12"))
	s.Require().NoError(svc.AddSnapshot(ctx, types.DefaultTenantID, retro))
	close(repo.release)

	var first resolved
	select {
	case first = <-inFlight:
	case <-time.After(3 * time.Second):
		s.FailNow("in-flight resolve did not return")
	}
	s.Require().NoError(first.err)
	s.NotEqual(retro.ID, first.snap.ID)

	got, err := svc.Resolve(ctx, types.DefaultTenantID, mid)
	s.Require().NoError(err)
	s.Equal(retro.ID, got.ID)

	snapshots, err := svc.ListSnapshots(ctx, types.DefaultTenantID)
	s.NoError(err)
	s.Len(snapshots, 2)
}

func (s *CatalogServiceSuite) TestInstancesSharingAStoreSeeEachOthersAppends() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)
	feb := types.Date(2024, time.February, 1)

	other := s.engine.params
	other.Cache = cache.NewInMemoryCache(s.GetConfig(), s.GetLogger())
	peer := NewCatalogService(other)

	s.Require().NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "10"))))

	// warm this instance's cache
	_, err := s.engine.catalog.Resolve(ctx, types.DefaultTenantID, feb)
	s.Require().NoError(err)

	v2 := testutil.Snapshot(feb, testutil.MonthlyPlan("basic", "USD", 0, "20"))
	s.Require().NoError(peer.AddSnapshot(ctx, types.DefaultTenantID, v2))

	got, err := s.engine.catalog.Resolve(ctx, types.DefaultTenantID, feb)
	s.Require().NoError(err)
	s.Equal(v2.ID, got.ID)
}

func (s *CatalogServiceSuite) TestAddSnapshotValidation() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)

	testCases := []struct {
		name     string
		snapshot *catalog.Snapshot
	}{
		{
			name:     "nil_snapshot",
			snapshot: nil,
		},
		{
			name: "duplicate_names",
			snapshot: testutil.Snapshot(jan,
				testutil.MonthlyPlan("basic", "USD", 0, "10"),
				testutil.MonthlyPlan("basic", "USD", 0, "20")),
		},
		{
			name:     "missing_effective_date",
			snapshot: &catalog.Snapshot{Plans: []*catalog.Plan{testutil.MonthlyPlan("basic", "USD", 0, "10")}},
		},
		{
			name:     "negative_price",
			snapshot: testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "-1")),
		},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			err := s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID, tc.snapshot)
			s.Error(err)
			s.True(ierr.IsValidation(err))
		})
	}

	snapshots, err := s.engine.catalog.ListSnapshots(ctx, types.DefaultTenantID)
	s.NoError(err)
	s.Empty(snapshots)
}

func (s *CatalogServiceSuite) TestAddSimplePlan() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)

	first, err := s.engine.catalog.AddSimplePlan(ctx, types.DefaultTenantID, &catalog.SimplePlanDescriptor{
		PlanName:      "pistol-monthly",
		ProductName:   "Pistol",
		Category:      types.PRODUCT_CATEGORY_BASE,
		Currency:      "USD",
		Amount:        decimal.NewFromInt(10),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		TrialLength:   14,
		TrialTimeUnit: types.DURATION_UNIT_DAYS,
	}, jan)
	s.Require().NoError(err)
	s.Equal([]string{"pistol-monthly"}, first.PlanNames())

	plan, err := catalog.PlanFor(first, "pistol-monthly")
	s.Require().NoError(err)
	s.Require().Len(plan.Phases, 2)
	s.Equal(types.PHASE_TYPE_TRIAL, plan.Phases[0].Type)
	s.True(plan.Phases[0].FixedPrice.IsZero())
	s.Equal(types.PHASE_TYPE_EVERGREEN, plan.Phases[1].Type)

	second, err := s.engine.catalog.AddSimplePlan(ctx, types.DefaultTenantID, &catalog.SimplePlanDescriptor{
		PlanName:      "blowdart-monthly",
		ProductName:   "Blowdart",
		Category:      types.PRODUCT_CATEGORY_BASE,
		Currency:      "USD",
		Amount:        decimal.NewFromInt(5),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
	}, types.Date(2024, time.February, 1))
	s.Require().NoError(err)
	s.ElementsMatch([]string{"pistol-monthly", "blowdart-monthly"}, second.PlanNames())

	// the older version is untouched
	resolved, err := s.engine.catalog.Resolve(ctx, types.DefaultTenantID, jan)
	s.NoError(err)
	s.Equal([]string{"pistol-monthly"}, resolved.PlanNames())

	_, err = s.engine.catalog.AddSimplePlan(ctx, types.DefaultTenantID, &catalog.SimplePlanDescriptor{PlanName: "broken"}, jan)
	s.True(ierr.IsValidation(err))
}

func (s *CatalogServiceSuite) TestRedefinitionOfPlanInUse() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(jan,
			testutil.MonthlyPlan("basic", "USD", 0, "10"),
			testutil.MonthlyPlan("unused", "USD", 0, "10"))))

	sub, _, err := s.engine.entitlements.CreateSubscription(ctx, CreateSubscriptionRequest{
		AccountID:     "acct_1",
		PlanName:      "basic",
		EffectiveDate: jan,
	})
	s.Require().NoError(err)

	// a price change keeps the plan identity
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(types.Date(2024, time.February, 1), testutil.MonthlyPlan("basic", "USD", 0, "15"))))

	err = s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(types.Date(2024, time.March, 1), testutil.MonthlyPlan("basic", "EUR", 0, "15")))
	s.True(ierr.IsDuplicatePlan(err))

	// plans nobody subscribes to may change currency
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(types.Date(2024, time.March, 1), testutil.MonthlyPlan("unused", "EUR", 0, "15"))))

	_, err = s.engine.entitlements.Cancel(ctx, LifecycleRequest{SubscriptionID: sub.ID, EffectiveDate: types.Date(2024, time.February, 10)})
	s.Require().NoError(err)

	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(types.Date(2024, time.April, 1), testutil.MonthlyPlan("basic", "EUR", 0, "15"))))
}

func (s *CatalogServiceSuite) TestBlockedCatalogRejectsAppends() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "10"))))

	s.NoError(s.engine.catalog.Block(ctx, types.DefaultTenantID, "manual"))
	blocked, err := s.engine.catalog.IsBlocked(ctx, types.DefaultTenantID)
	s.NoError(err)
	s.True(blocked)

	err = s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(types.Date(2024, time.February, 1), testutil.MonthlyPlan("basic", "USD", 0, "20")))
	s.True(ierr.IsCatalogBlocked(err))

	// other tenants are unaffected
	s.NoError(s.engine.catalog.AddSnapshot(ctx, "tenant_other",
		testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "10"))))
}

func (s *CatalogServiceSuite) TestPlanLookupFallsBackToTaggedSnapshot() {
	ctx := s.GetContext()
	jan := types.Date(2024, time.January, 1)
	v1 := testutil.Snapshot(jan, testutil.MonthlyPlan("legacy", "USD", 0, "10"))
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID, v1))
	// a later same-day version drops the plan
	s.NoError(s.engine.catalog.AddSnapshot(ctx, types.DefaultTenantID,
		testutil.Snapshot(jan, testutil.MonthlyPlan("basic", "USD", 0, "10"))))

	lookup := s.engine.catalog.PlanLookup(ctx, types.DefaultTenantID)

	plan, snapshotID, err := lookup("legacy", jan, v1.ID)
	s.NoError(err)
	s.Equal("legacy", plan.Name)
	s.Equal(v1.ID, snapshotID)

	_, _, err = lookup("legacy", jan, "")
	s.True(ierr.IsUnknownPlan(err))
}
