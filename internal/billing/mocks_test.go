// AngelaMos | 2026
// mocks_test.go

package billing_test

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"

	"github.com/carterperez-dev/templates/saas-backend/internal/auth"
	"github.com/carterperez-dev/templates/saas-backend/internal/billing"
	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

type mockGateway struct {
	CreateCustomerFunc     func(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	PriceByLookupKeyFunc   func(ctx context.Context, lookupKey string) (*stripe.Price, error)
	NewCheckoutSessionFunc func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortalSessionFunc   func(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	GetSubscriptionFunc    func(ctx context.Context, id string) (*stripe.Subscription, error)
	CustomersByEmailFunc   func(ctx context.Context, email string) ([]*stripe.Customer, error)
	DeleteCustomerFunc     func(ctx context.Context, id string) error
}

func (m *mockGateway) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, params)
	}
	return &stripe.Customer{ID: "cus_new", Email: stripe.StringValue(params.Email)}, nil
}

func (m *mockGateway) PriceByLookupKey(ctx context.Context, lookupKey string) (*stripe.Price, error) {
	if m.PriceByLookupKeyFunc != nil {
		return m.PriceByLookupKeyFunc(ctx, lookupKey)
	}
	return &stripe.Price{ID: "price_" + lookupKey, LookupKey: lookupKey}, nil
}

func (m *mockGateway) NewCheckoutSession(
	ctx context.Context,
	params *stripe.CheckoutSessionParams,
) (*stripe.CheckoutSession, error) {
	if m.NewCheckoutSessionFunc != nil {
		return m.NewCheckoutSessionFunc(ctx, params)
	}
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (m *mockGateway) NewPortalSession(
	ctx context.Context,
	params *stripe.BillingPortalSessionParams,
) (*stripe.BillingPortalSession, error) {
	if m.NewPortalSessionFunc != nil {
		return m.NewPortalSessionFunc(ctx, params)
	}
	return &stripe.BillingPortalSession{URL: "https://billing.stripe.test/p_1"}, nil
}

func (m *mockGateway) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, id)
	}
	return nil, fmt.Errorf("subscription %s not stubbed", id)
}

func (m *mockGateway) CustomersByEmail(ctx context.Context, email string) ([]*stripe.Customer, error) {
	if m.CustomersByEmailFunc != nil {
		return m.CustomersByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *mockGateway) DeleteCustomer(ctx context.Context, id string) error {
	if m.DeleteCustomerFunc != nil {
		return m.DeleteCustomerFunc(ctx, id)
	}
	return nil
}

// memRepo keys subscriptions by Stripe subscription id like the unique
// constraint does.
type memRepo struct {
	byStripeID map[string]billing.Subscription
	upserts    int
}

func newMemRepo() *memRepo {
	return &memRepo{byStripeID: map[string]billing.Subscription{}}
}

func (r *memRepo) Upsert(_ context.Context, sub *billing.Subscription) error {
	r.upserts++
	key := *sub.StripeSubscriptionID
	if existing, ok := r.byStripeID[key]; ok {
		sub.ID = existing.ID
		if sub.ReferenceID == "" {
			sub.ReferenceID = existing.ReferenceID
		}
	}
	r.byStripeID[key] = *sub
	return nil
}

func (r *memRepo) GetByReference(_ context.Context, referenceID string) (*billing.Subscription, error) {
	for _, s := range r.byStripeID {
		if s.ReferenceID == referenceID {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
}

func (r *memRepo) GetByStripeID(_ context.Context, id string) (*billing.Subscription, error) {
	s, ok := r.byStripeID[id]
	if !ok {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	return &s, nil
}

type fakeCustomers struct {
	users     map[string]*auth.UserInfo
	customers map[string]string
}

func (f *fakeCustomers) GetByID(_ context.Context, id string) (*auth.UserInfo, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

func (f *fakeCustomers) StripeCustomerID(_ context.Context, userID string) (string, error) {
	return f.customers[userID], nil
}

func (f *fakeCustomers) SetStripeCustomerID(_ context.Context, userID, customerID string) error {
	f.customers[userID] = customerID
	return nil
}

type fakeOrgs struct {
	active map[string]*organization.ActiveOrganization
}

func (f *fakeOrgs) Active(_ context.Context, userID string) (*organization.ActiveOrganization, error) {
	a, ok := f.active[userID]
	if !ok {
		return nil, organization.ErrNoOrganization
	}
	return a, nil
}

type countingRecorder struct {
	webhooks         map[string]int
	customersDeleted int
}

func (r *countingRecorder) IncWebhookEvent(eventType, result string) {
	if r.webhooks == nil {
		r.webhooks = map[string]int{}
	}
	r.webhooks[eventType+"/"+result]++
}

func (r *countingRecorder) AddStripeCustomersDeleted(n int) {
	r.customersDeleted += n
}
