package entitlement

import (
	"context"
	"time"
)

// Repository stores subscriptions and their append-only timelines
type Repository interface {
	// CreateSubscription stores the registry record together with its CREATE event
	CreateSubscription(ctx context.Context, sub *Subscription, create *Event) error
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	// ListSubscriptions lists subscriptions of a tenant, every tenant when tenantID is empty
	ListSubscriptions(ctx context.Context, tenantID string) ([]*Subscription, error)
	UpdateNextBillingDate(ctx context.Context, id string, next *time.Time) error

	// ListEvents returns the timeline in commit order
	ListEvents(ctx context.Context, subscriptionID string) ([]*Event, error)
	// AppendEvent appends only if the timeline still holds expectedCount events,
	// failing with ErrVersionConflict otherwise. Sequence is assigned on success.
	AppendEvent(ctx context.Context, event *Event, expectedCount int64) error
}
