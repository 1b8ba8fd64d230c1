package types

// SignalType names a notification emitted to external listeners
type SignalType string

const (
	SignalSubscriptionCreated      SignalType = "subscription.created"
	SignalSubscriptionPlanChanged  SignalType = "subscription.plan_changed"
	SignalSubscriptionPhaseChanged SignalType = "subscription.phase_changed"
	SignalSubscriptionCancelled    SignalType = "subscription.cancelled"
	SignalSubscriptionBlocked      SignalType = "subscription.blocked"
	SignalSubscriptionUnblocked    SignalType = "subscription.unblocked"

	SignalInvoiceCreated SignalType = "invoice.created"
	// SignalInvoiceNull is emitted when a triggered run had nothing to invoice
	SignalInvoiceNull SignalType = "invoice.null"

	SignalPaymentRequested SignalType = "payment.requested"
	SignalPaymentResult    SignalType = "payment.result"
)

func (s SignalType) String() string {
	return string(s)
}

// SignalForEvent maps an entitlement event to the signal announcing it
func SignalForEvent(t EntitlementEventType) SignalType {
	switch t {
	case EntitlementEventCreate:
		return SignalSubscriptionCreated
	case EntitlementEventChangePlan:
		return SignalSubscriptionPlanChanged
	case EntitlementEventPhaseChange:
		return SignalSubscriptionPhaseChanged
	case EntitlementEventCancel:
		return SignalSubscriptionCancelled
	case EntitlementEventBlock:
		return SignalSubscriptionBlocked
	case EntitlementEventUnblock:
		return SignalSubscriptionUnblocked
	}
	return ""
}
