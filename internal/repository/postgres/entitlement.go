package postgres

import (
	"context"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/postgres"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
)

const (
	subscriptionColumns = `id, tenant_id, account_id, external_key, currency, start_date, next_billing_date, created_at`
	eventColumns        = `id, tenant_id, subscription_id, event_type, effective_date, plan_name, snapshot_id, phase_type, sequence, created_at`
)

type entitlementRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewEntitlementRepository(db *postgres.DB, logger *logger.Logger) entitlement.Repository {
	return &entitlementRepository{db: db, logger: logger}
}

func normalizeSubscription(sub *entitlement.Subscription) *entitlement.Subscription {
	sub.StartDate = types.StartOfDay(sub.StartDate)
	sub.CreatedAt = sub.CreatedAt.UTC()
	if sub.NextBillingDate != nil {
		sub.NextBillingDate = lo.ToPtr(types.StartOfDay(*sub.NextBillingDate))
	}
	return sub
}

func normalizeEvent(e *entitlement.Event) *entitlement.Event {
	e.EffectiveDate = types.StartOfDay(e.EffectiveDate)
	e.CreatedAt = e.CreatedAt.UTC()
	return e
}

func (r *entitlementRepository) insertEvent(ctx context.Context, event *entitlement.Event) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO entitlement_events (`+eventColumns+`)
		VALUES (
			:id, :tenant_id, :subscription_id, :event_type, :effective_date,
			:plan_name, :snapshot_id, :phase_type, :sequence, :created_at
		)`, event)
	return err
}

func (r *entitlementRepository) CreateSubscription(ctx context.Context, sub *entitlement.Subscription, create *entitlement.Event) error {
	span := postgres.StartRepositorySpan(ctx, "entitlement", "create_subscription", map[string]interface{}{
		"subscription_id": sub.ID,
	})
	defer postgres.FinishSpan(span)

	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.NamedExecContext(ctx, `
			INSERT INTO subscriptions (`+subscriptionColumns+`)
			VALUES (
				:id, :tenant_id, :account_id, :external_key, :currency,
				:start_date, :next_billing_date, :created_at
			)`, sub); err != nil {
			return postgres.WrapError(err, "subscription", map[string]any{"subscription_id": sub.ID})
		}

		create.Sequence = 1
		if err := r.insertEvent(ctx, create); err != nil {
			return postgres.WrapError(err, "entitlement event", map[string]any{"event_id": create.ID})
		}
		return nil
	})
	if err != nil {
		postgres.SetSpanError(span, err)
		return err
	}
	postgres.SetSpanSuccess(span)
	return nil
}

func (r *entitlementRepository) GetSubscription(ctx context.Context, id string) (*entitlement.Subscription, error) {
	var sub entitlement.Subscription
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &sub,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id,
	); err != nil {
		return nil, postgres.WrapError(err, "subscription", map[string]any{"subscription_id": id})
	}
	return normalizeSubscription(&sub), nil
}

func (r *entitlementRepository) ListSubscriptions(ctx context.Context, tenantID string) ([]*entitlement.Subscription, error) {
	var subs []*entitlement.Subscription
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY created_at, id`, tenantID,
	); err != nil {
		return nil, postgres.WrapError(err, "subscription", map[string]any{"tenant_id": tenantID})
	}
	return lo.Map(subs, func(sub *entitlement.Subscription, _ int) *entitlement.Subscription {
		return normalizeSubscription(sub)
	}), nil
}

func (r *entitlementRepository) UpdateNextBillingDate(ctx context.Context, id string, next *time.Time) error {
	result, err := r.db.GetQuerier(ctx).ExecContext(ctx,
		`UPDATE subscriptions SET next_billing_date = $2 WHERE id = $1`, id, next,
	)
	if err != nil {
		return postgres.WrapError(err, "subscription", map[string]any{"subscription_id": id})
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("subscription not found").
			WithHint("No subscription exists with this id").
			WithReportableDetails(map[string]any{"subscription_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *entitlementRepository) ListEvents(ctx context.Context, subscriptionID string) ([]*entitlement.Event, error) {
	var events []*entitlement.Event
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &events, `
		SELECT `+eventColumns+`
		FROM entitlement_events
		WHERE subscription_id = $1
		ORDER BY sequence`, subscriptionID,
	); err != nil {
		return nil, postgres.WrapError(err, "entitlement event", map[string]any{"subscription_id": subscriptionID})
	}
	// every subscription is created with its CREATE event
	if len(events) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHint("No timeline exists for this subscription").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrNotFound)
	}
	return lo.Map(events, func(e *entitlement.Event, _ int) *entitlement.Event {
		return normalizeEvent(e)
	}), nil
}

func (r *entitlementRepository) AppendEvent(ctx context.Context, event *entitlement.Event, expectedCount int64) error {
	span := postgres.StartRepositorySpan(ctx, "entitlement", "append_event", map[string]interface{}{
		"subscription_id": event.SubscriptionID,
		"event_type":      event.Type,
	})
	defer postgres.FinishSpan(span)

	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)

		var locked string
		if err := q.GetContext(ctx, &locked,
			`SELECT id FROM subscriptions WHERE id = $1 FOR UPDATE`, event.SubscriptionID,
		); err != nil {
			return postgres.WrapError(err, "subscription", map[string]any{"subscription_id": event.SubscriptionID})
		}

		var count int64
		if err := q.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM entitlement_events WHERE subscription_id = $1`, event.SubscriptionID,
		); err != nil {
			return postgres.WrapError(err, "entitlement event", nil)
		}
		if count != expectedCount {
			return ierr.NewError("timeline changed concurrently").
				WithHint("The subscription timeline was modified, reload and retry").
				WithReportableDetails(map[string]any{
					"subscription_id": event.SubscriptionID,
					"expected":        expectedCount,
					"actual":          count,
				}).
				Mark(ierr.ErrVersionConflict)
		}

		event.Sequence = expectedCount + 1
		if err := r.insertEvent(ctx, event); err != nil {
			if postgres.IsUniqueViolation(err) {
				return ierr.WithError(err).
					WithHint("The subscription timeline was modified, reload and retry").
					Mark(ierr.ErrVersionConflict)
			}
			return postgres.WrapError(err, "entitlement event", map[string]any{"event_id": event.ID})
		}
		return nil
	})
	if err != nil {
		postgres.SetSpanError(span, err)
		return err
	}
	postgres.SetSpanSuccess(span)
	return nil
}
