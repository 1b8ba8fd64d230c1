package memory

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/samber/lo"
)

// EntitlementStore implements entitlement.Repository
type EntitlementStore struct {
	subs *Store[*entitlement.Subscription]

	mu     sync.RWMutex
	events map[string][]*entitlement.Event
}

func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{
		subs:   NewStore[*entitlement.Subscription]("subscription"),
		events: make(map[string][]*entitlement.Event),
	}
}

func copySubscription(sub *entitlement.Subscription) *entitlement.Subscription {
	if sub == nil {
		return nil
	}
	c := *sub
	if sub.NextBillingDate != nil {
		c.NextBillingDate = lo.ToPtr(*sub.NextBillingDate)
	}
	return &c
}

func (s *EntitlementStore) CreateSubscription(ctx context.Context, sub *entitlement.Subscription, create *entitlement.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.subs.Create(ctx, sub.ID, copySubscription(sub)); err != nil {
		return err
	}
	create.Sequence = 1
	s.events[sub.ID] = []*entitlement.Event{create}
	return nil
}

func (s *EntitlementStore) GetSubscription(ctx context.Context, id string) (*entitlement.Subscription, error) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copySubscription(sub), nil
}

func (s *EntitlementStore) ListSubscriptions(ctx context.Context, tenantID string) ([]*entitlement.Subscription, error) {
	subs := s.subs.List(ctx,
		func(_ context.Context, sub *entitlement.Subscription) bool {
			return tenantID == "" || sub.TenantID == tenantID
		},
		func(a, b *entitlement.Subscription) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		},
	)
	return lo.Map(subs, func(sub *entitlement.Subscription, _ int) *entitlement.Subscription {
		return copySubscription(sub)
	}), nil
}

func (s *EntitlementStore) UpdateNextBillingDate(ctx context.Context, id string, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return err
	}
	updated := copySubscription(sub)
	updated.NextBillingDate = nil
	if next != nil {
		updated.NextBillingDate = lo.ToPtr(*next)
	}
	return s.subs.Update(ctx, id, updated)
}

func (s *EntitlementStore) ListEvents(_ context.Context, subscriptionID string) ([]*entitlement.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.events[subscriptionID]
	if !ok {
		return nil, ierr.NewError("subscription not found").
			WithHint("No timeline exists for this subscription").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrNotFound)
	}
	out := make([]*entitlement.Event, len(events))
	copy(out, events)
	return out, nil
}

func (s *EntitlementStore) AppendEvent(_ context.Context, event *entitlement.Event, expectedCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.events[event.SubscriptionID]
	if !ok {
		return ierr.NewError("subscription not found").
			WithHint("Cannot append to the timeline of an unknown subscription").
			WithReportableDetails(map[string]any{"subscription_id": event.SubscriptionID}).
			Mark(ierr.ErrNotFound)
	}
	if int64(len(events)) != expectedCount {
		return ierr.NewError("timeline changed concurrently").
			WithHint("The subscription timeline was modified, reload and retry").
			WithReportableDetails(map[string]any{
				"subscription_id": event.SubscriptionID,
				"expected":        expectedCount,
				"actual":          len(events),
			}).
			Mark(ierr.ErrVersionConflict)
	}

	event.Sequence = expectedCount + 1
	s.events[event.SubscriptionID] = append(events, event)
	return nil
}

// Clear drops every subscription and timeline
func (s *EntitlementStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.Clear()
	s.events = make(map[string][]*entitlement.Event)
}
