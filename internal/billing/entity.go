// AngelaMos | 2026
// entity.go

package billing

import (
	"time"
)

// Subscription mirrors a Stripe subscription for one organization. Status
// is stored exactly as Stripe reports it.
type Subscription struct {
	ID                   string     `db:"id"`
	ReferenceID          string     `db:"reference_id"`
	StripeCustomerID     *string    `db:"stripe_customer_id"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id"`
	Plan                 string     `db:"plan"`
	Status               string     `db:"status"`
	CancelAtPeriodEnd    bool       `db:"cancel_at_period_end"`
	TrialEnd             *time.Time `db:"trial_end"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// DeletedCustomer summarizes a Stripe customer removed by the cleanup
// endpoint.
type DeletedCustomer struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Subscriptions []string `json:"subscriptions"`
}
