package catalog

import (
	"time"

	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
)

// NewNoCatalogError reports that no snapshot is effective at date
func NewNoCatalogError(tenantID string, date time.Time) error {
	return ierr.NewErrorf("no catalog effective at %s", types.FormatDate(date)).
		WithHint("Add a catalog version effective on or before the requested date").
		WithReportableDetails(map[string]any{
			"tenant_id": tenantID,
			"date":      types.FormatDate(date),
		}).
		Mark(ierr.ErrNoCatalog)
}

// NewUnknownPlanError reports that a plan is absent from a snapshot
func NewUnknownPlanError(snapshotID, planName string) error {
	return ierr.NewErrorf("plan %s not found in catalog version", planName).
		WithHintf("Plan %s does not exist in the applicable catalog version", planName).
		WithReportableDetails(map[string]any{
			"snapshot_id": snapshotID,
			"plan":        planName,
		}).
		Mark(ierr.ErrUnknownPlan)
}
