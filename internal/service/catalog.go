package service

import (
	"context"
	"time"

	"github.com/flexprice/invoicerecon/internal/cache"
	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/flexprice/invoicerecon/internal/validator"
	"github.com/samber/lo"
)

// CatalogService manages the append-only catalog versions of each tenant
type CatalogService interface {
	// Resolve returns the snapshot applicable at date
	Resolve(ctx context.Context, tenantID string, date time.Time) (*catalog.Snapshot, error)
	AddSnapshot(ctx context.Context, tenantID string, snapshot *catalog.Snapshot) error
	// AddSimplePlan appends a version holding the plans applicable at
	// effectiveDate plus the described plan
	AddSimplePlan(ctx context.Context, tenantID string, desc *catalog.SimplePlanDescriptor, effectiveDate time.Time) (*catalog.Snapshot, error)
	ListSnapshots(ctx context.Context, tenantID string) ([]*catalog.Snapshot, error)
	Block(ctx context.Context, tenantID, reason string) error
	IsBlocked(ctx context.Context, tenantID string) (bool, error)
	// PlanLookup resolves plans under the current catalog, falling back to
	// the snapshot an event was tagged with when the plan has since been dropped
	PlanLookup(ctx context.Context, tenantID string) entitlement.PlanLookup
}

type catalogService struct {
	ServiceParams
}

func NewCatalogService(params ServiceParams) CatalogService {
	return &catalogService{
		ServiceParams: params,
	}
}

func snapshotsCacheKey(tenantID string) string {
	return cache.GenerateKey(cache.PrefixCatalogSnapshots, tenantID)
}

func resolutionCacheKey(tenantID string, date time.Time) string {
	return cache.GenerateKey(cache.PrefixCatalogResolution, tenantID, types.FormatDate(date))
}

// versioned stamps a cached value with the tenant catalog version it was
// derived from. Reads compare the stamp with the stored latest version so an
// entry written from an older list, by this process or another one, is never
// served.
type versioned[T any] struct {
	version int
	value   T
}

func (s *catalogService) invalidate(ctx context.Context, tenantID string) {
	s.Cache.Delete(ctx, snapshotsCacheKey(tenantID))
	s.Cache.DeleteByPrefix(ctx, cache.GenerateKey(cache.PrefixCatalogResolution, tenantID)+":")
}

func (s *catalogService) ListSnapshots(ctx context.Context, tenantID string) ([]*catalog.Snapshot, error) {
	latest, err := s.CatalogRepo.LatestVersion(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	snapshots, _, err := s.listSnapshots(ctx, tenantID, latest)
	return snapshots, err
}

// listSnapshots returns the ordered snapshot list and the version it reflects
func (s *catalogService) listSnapshots(ctx context.Context, tenantID string, latest int) ([]*catalog.Snapshot, int, error) {
	key := snapshotsCacheKey(tenantID)
	if cached, ok := s.Cache.Get(ctx, key); ok {
		if entry, ok := cached.(versioned[[]*catalog.Snapshot]); ok && entry.version == latest {
			return entry.value, entry.version, nil
		}
	}

	snapshots, err := s.CatalogRepo.List(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	catalog.SortByVersion(snapshots)

	version := 0
	if len(snapshots) > 0 {
		version = snapshots[len(snapshots)-1].Version
	}
	s.Cache.Set(ctx, key, versioned[[]*catalog.Snapshot]{version: version, value: snapshots}, s.Config.Catalog.CacheTTL)
	return snapshots, version, nil
}

func (s *catalogService) Resolve(ctx context.Context, tenantID string, date time.Time) (*catalog.Snapshot, error) {
	date = types.StartOfDay(date)

	lookup := cache.StartLookup(ctx, "catalog_resolution", map[string]interface{}{
		"tenant_id": tenantID,
		"date":      types.FormatDate(date),
	})

	latest, err := s.CatalogRepo.LatestVersion(ctx, tenantID)
	if err != nil {
		lookup.Fail(err)
		return nil, err
	}

	key := resolutionCacheKey(tenantID, date)
	if cached, ok := s.Cache.Get(ctx, key); ok {
		if entry, ok := cached.(versioned[*catalog.Snapshot]); ok && entry.version == latest {
			lookup.Hit()
			return entry.value, nil
		}
	}

	snapshots, version, err := s.listSnapshots(ctx, tenantID, latest)
	if err != nil {
		lookup.Fail(err)
		return nil, err
	}
	snap := catalog.ResolveAt(snapshots, date)
	if snap == nil {
		err := catalog.NewNoCatalogError(tenantID, date)
		lookup.Fail(err)
		return nil, err
	}
	lookup.Miss()

	s.Cache.Set(ctx, key, versioned[*catalog.Snapshot]{version: version, value: snap}, s.Config.Catalog.CacheTTL)
	return snap, nil
}

func (s *catalogService) AddSnapshot(ctx context.Context, tenantID string, snapshot *catalog.Snapshot) error {
	if snapshot == nil {
		return ierr.NewError("snapshot is required").
			WithHint("Provide a catalog version to append").
			Mark(ierr.ErrValidation)
	}
	snapshot.TenantID = tenantID
	snapshot.EffectiveDate = types.StartOfDay(snapshot.EffectiveDate)
	if err := snapshot.Validate(); err != nil {
		return err
	}

	if err := s.ensureNotBlocked(ctx, tenantID); err != nil {
		return err
	}

	existing, err := s.ListSnapshots(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, plan := range snapshot.Plans {
		if err := s.checkRedefinition(ctx, tenantID, existing, plan); err != nil {
			return err
		}
	}

	if err := s.CatalogRepo.Append(ctx, snapshot); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)

	s.Logger.Infow("catalog version added",
		"tenant_id", tenantID,
		"snapshot_id", snapshot.ID,
		"version", snapshot.Version,
		"effective_date", types.FormatDate(snapshot.EffectiveDate),
		"plans", snapshot.PlanNames(),
	)
	return nil
}

// checkRedefinition rejects a plan whose identity changes while live
// subscriptions still bill against the name
func (s *catalogService) checkRedefinition(ctx context.Context, tenantID string, existing []*catalog.Snapshot, plan *catalog.Plan) error {
	for _, prior := range existing {
		previous, err := catalog.PlanFor(prior, plan.Name)
		if err != nil {
			continue
		}
		if previous.Category == plan.Category && types.IsMatchingCurrency(previous.Currency, plan.Currency) {
			continue
		}

		inUse, err := planInUse(ctx, s.EntitlementRepo, tenantID, plan.Name)
		if err != nil {
			return err
		}
		if !inUse {
			continue
		}
		return ierr.NewErrorf("plan %s is redefined while in use", plan.Name).
			WithHintf("Plan %s already exists with a different category or currency and has live subscriptions", plan.Name).
			WithReportableDetails(map[string]any{
				"tenant_id":         tenantID,
				"plan":              plan.Name,
				"previous_snapshot": prior.ID,
				"previous_category": previous.Category,
				"previous_currency": previous.Currency,
				"category":          plan.Category,
				"currency":          plan.Currency,
			}).
			Mark(ierr.ErrDuplicatePlan)
	}
	return nil
}

func (s *catalogService) AddSimplePlan(ctx context.Context, tenantID string, desc *catalog.SimplePlanDescriptor, effectiveDate time.Time) (*catalog.Snapshot, error) {
	if err := validator.ValidateRequest(desc); err != nil {
		return nil, err
	}
	effectiveDate = types.StartOfDay(effectiveDate)

	var plans []*catalog.Plan
	current, err := s.Resolve(ctx, tenantID, effectiveDate)
	switch {
	case err == nil:
		plans = lo.Reject(current.Plans, func(p *catalog.Plan, _ int) bool {
			return p.Name == desc.PlanName
		})
	case !ierr.IsNoCatalog(err):
		return nil, err
	}

	snapshot := &catalog.Snapshot{
		EffectiveDate: effectiveDate,
		Plans:         append(plans, desc.ToPlan()),
	}
	if err := s.AddSnapshot(ctx, tenantID, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *catalogService) Block(ctx context.Context, tenantID, reason string) error {
	if err := s.CatalogRepo.Block(ctx, &catalog.Block{
		TenantID:  tenantID,
		Reason:    reason,
		BlockedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)

	s.Logger.Errorw("tenant catalog blocked",
		"tenant_id", tenantID,
		"reason", reason,
	)
	return nil
}

func (s *catalogService) IsBlocked(ctx context.Context, tenantID string) (bool, error) {
	block, err := s.CatalogRepo.GetBlock(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return block != nil, nil
}

func (s *catalogService) ensureNotBlocked(ctx context.Context, tenantID string) error {
	block, err := s.CatalogRepo.GetBlock(ctx, tenantID)
	if err != nil {
		return err
	}
	if block == nil {
		return nil
	}
	return ierr.NewError("tenant catalog is blocked").
		WithHint("The catalog was blocked after an inconsistency was detected and needs operator attention").
		WithReportableDetails(map[string]any{
			"tenant_id":  tenantID,
			"reason":     block.Reason,
			"blocked_at": block.BlockedAt,
		}).
		Mark(ierr.ErrCatalogBlocked)
}

func (s *catalogService) PlanLookup(ctx context.Context, tenantID string) entitlement.PlanLookup {
	return func(planName string, date time.Time, snapshotID string) (*catalog.Plan, string, error) {
		snap, err := s.Resolve(ctx, tenantID, date)
		if err != nil && !ierr.IsNoCatalog(err) {
			return nil, "", err
		}
		if err == nil {
			plan, planErr := catalog.PlanFor(snap, planName)
			if planErr == nil {
				return plan, snap.ID, nil
			}
			err = planErr
		}

		if snapshotID == "" {
			return nil, "", err
		}
		tagged, tagErr := s.CatalogRepo.Get(ctx, tenantID, snapshotID)
		if tagErr != nil {
			if ierr.IsNotFound(tagErr) {
				return nil, "", err
			}
			return nil, "", tagErr
		}
		plan, planErr := catalog.PlanFor(tagged, planName)
		if planErr != nil {
			return nil, "", planErr
		}
		return plan, tagged.ID, nil
	}
}
