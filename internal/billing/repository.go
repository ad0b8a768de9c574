// AngelaMos | 2026
// repository.go

package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
)

type Repository interface {
	Upsert(ctx context.Context, sub *Subscription) error
	GetByReference(ctx context.Context, referenceID string) (*Subscription, error)
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const subscriptionColumns = `
	id, reference_id, stripe_customer_id, stripe_subscription_id, plan, status,
	cancel_at_period_end, trial_end, created_at, updated_at`

// Upsert inserts sub or, when its Stripe subscription id is already known,
// refreshes the mutable fields. An empty reference id never overwrites a
// stored one.
func (r *repository) Upsert(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, reference_id, stripe_customer_id, stripe_subscription_id,
			plan, status, cancel_at_period_end, trial_end
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			reference_id = COALESCE(NULLIF(EXCLUDED.reference_id, ''), subscriptions.reference_id),
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			trial_end = EXCLUDED.trial_end,
			updated_at = NOW()
		RETURNING ` + subscriptionColumns

	err := r.db.GetContext(ctx, sub, query,
		sub.ID,
		sub.ReferenceID,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		sub.Plan,
		sub.Status,
		sub.CancelAtPeriodEnd,
		sub.TrialEnd,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	return nil
}

// GetByReference returns the most recently updated subscription of an
// organization.
func (r *repository) GetByReference(
	ctx context.Context,
	referenceID string,
) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE reference_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`

	return r.get(ctx, query, referenceID)
}

func (r *repository) GetByStripeID(
	ctx context.Context,
	stripeSubscriptionID string,
) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE stripe_subscription_id = $1`

	return r.get(ctx, query, stripeSubscriptionID)
}

func (r *repository) get(ctx context.Context, query, arg string) (*Subscription, error) {
	var sub Subscription
	err := r.db.GetContext(ctx, &sub, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}
