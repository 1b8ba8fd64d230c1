package entitlement

import (
	"sort"
	"time"

	"github.com/flexprice/invoicerecon/internal/types"
)

// Event is an immutable transition on a subscription timeline
type Event struct {
	ID             string                     `db:"id" json:"id"`
	TenantID       string                     `db:"tenant_id" json:"tenant_id"`
	SubscriptionID string                     `db:"subscription_id" json:"subscription_id"`
	Type           types.EntitlementEventType `db:"event_type" json:"type"`
	EffectiveDate  time.Time                  `db:"effective_date" json:"effective_date"`
	PlanName       string                     `db:"plan_name" json:"plan_name,omitempty"`
	// SnapshotID is the catalog version that resolved PlanName when the event was recorded
	SnapshotID string          `db:"snapshot_id" json:"snapshot_id,omitempty"`
	PhaseType  types.PhaseType `db:"phase_type" json:"phase_type,omitempty"`
	// Sequence is the per subscription commit order, used to order same-day events
	Sequence  int64     `db:"sequence" json:"sequence"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Subscription is the registry record of a timeline. Everything except
// NextBillingDate is derived from events and never updated.
type Subscription struct {
	ID              string     `db:"id" json:"id"`
	TenantID        string     `db:"tenant_id" json:"tenant_id"`
	AccountID       string     `db:"account_id" json:"account_id"`
	ExternalKey     string     `db:"external_key" json:"external_key,omitempty"`
	Currency        string     `db:"currency" json:"currency"`
	StartDate       time.Time  `db:"start_date" json:"start_date"`
	NextBillingDate *time.Time `db:"next_billing_date" json:"next_billing_date,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// SortEvents orders events by effective date then commit sequence
func SortEvents(events []*Event) []*Event {
	out := make([]*Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.Before(b.EffectiveDate)
		}
		return a.Sequence < b.Sequence
	})
	return out
}
