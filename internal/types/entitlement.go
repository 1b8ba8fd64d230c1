package types

import (
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/samber/lo"
)

// EntitlementEventType is the kind of transition recorded on a subscription timeline
type EntitlementEventType string

const (
	EntitlementEventCreate      EntitlementEventType = "CREATE"
	EntitlementEventChangePlan  EntitlementEventType = "CHANGE_PLAN"
	EntitlementEventPhaseChange EntitlementEventType = "PHASE_CHANGE"
	EntitlementEventCancel      EntitlementEventType = "CANCEL"
	EntitlementEventBlock       EntitlementEventType = "BLOCK"
	EntitlementEventUnblock     EntitlementEventType = "UNBLOCK"
)

func (t EntitlementEventType) String() string {
	return string(t)
}

func (t EntitlementEventType) Validate() error {
	allowed := []EntitlementEventType{
		EntitlementEventCreate,
		EntitlementEventChangePlan,
		EntitlementEventPhaseChange,
		EntitlementEventCancel,
		EntitlementEventBlock,
		EntitlementEventUnblock,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid entitlement event type").
			WithHint("Please provide a valid entitlement event type").
			WithReportableDetails(map[string]any{
				"type":    t,
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// RequiresPlan reports whether events of this type name a plan that must resolve
func (t EntitlementEventType) RequiresPlan() bool {
	return t == EntitlementEventCreate || t == EntitlementEventChangePlan
}

// SubscriptionState is the lifecycle state derived from a timeline
type SubscriptionState string

const (
	SubscriptionStatePending   SubscriptionState = "PENDING"
	SubscriptionStateActive    SubscriptionState = "ACTIVE"
	SubscriptionStateCancelled SubscriptionState = "CANCELLED"
)

func (s SubscriptionState) String() string {
	return string(s)
}

// ChangePlanPolicy decides when a plan change takes effect
type ChangePlanPolicy string

const (
	// ChangePlanPolicyImmediate applies the change at the requested date and
	// repairs whatever was already invoiced for the rest of the period
	ChangePlanPolicyImmediate ChangePlanPolicy = "IMMEDIATE"
	// ChangePlanPolicyEndOfTerm defers the change to the end of the current billing period
	ChangePlanPolicyEndOfTerm ChangePlanPolicy = "END_OF_TERM"
)

func (p ChangePlanPolicy) String() string {
	return string(p)
}

func (p ChangePlanPolicy) Validate() error {
	allowed := []ChangePlanPolicy{
		ChangePlanPolicyImmediate,
		ChangePlanPolicyEndOfTerm,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid change plan policy").
			WithHint("Change plan policy must be IMMEDIATE or END_OF_TERM").
			WithReportableDetails(map[string]any{
				"policy":  p,
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
