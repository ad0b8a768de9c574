// AngelaMos | 2026
// service.go

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/carterperez-dev/templates/saas-backend/internal/auth"
	"github.com/carterperez-dev/templates/saas-backend/internal/config"
	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNoCustomer       = errors.New("no billing account yet")
)

const (
	metadataReferenceID = "reference_id"
	metadataPlan        = "plan"
	metadataUserID      = "user_id"
)

// CustomerStore keeps the Stripe customer id on the user record.
type CustomerStore interface {
	GetByID(ctx context.Context, id string) (*auth.UserInfo, error)
	StripeCustomerID(ctx context.Context, userID string) (string, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
}

type OrganizationLookup interface {
	Active(ctx context.Context, userID string) (*organization.ActiveOrganization, error)
}

type Recorder interface {
	IncWebhookEvent(eventType, result string)
	AddStripeCustomersDeleted(n int)
}

type nopRecorder struct{}

func (nopRecorder) IncWebhookEvent(string, string) {}
func (nopRecorder) AddStripeCustomersDeleted(int) {}

type Deps struct {
	Repo      Repository
	Gateway   Gateway
	Customers CustomerStore
	Orgs      OrganizationLookup
	Config    config.StripeConfig
	Metrics   Recorder
}

type Service struct {
	repo      Repository
	gateway   Gateway
	customers CustomerStore
	orgs      OrganizationLookup
	cfg       config.StripeConfig
	metrics   Recorder
}

func NewService(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Gateway == nil {
		d.Gateway = DisabledGateway{}
	}
	return &Service{
		repo:      d.Repo,
		gateway:   d.Gateway,
		customers: d.Customers,
		orgs:      d.Orgs,
		cfg:       d.Config,
		metrics:   d.Metrics,
	}
}

// Checkout starts a hosted subscription checkout for the caller's active
// organization. Only owners and admins may subscribe an organization.
func (s *Service) Checkout(
	ctx context.Context,
	userID, lookupKey string,
) (*CheckoutResponse, error) {
	plan, err := FindByLookupKey(lookupKey)
	if err != nil {
		return nil, err
	}

	active, err := s.orgs.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !organization.CanInvite(active.Role) {
		return nil, fmt.Errorf("checkout: %w", core.ErrForbidden)
	}

	customerID, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	price, err := s.gateway.PriceByLookupKey(ctx, lookupKey)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(active.ID),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price.ID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				metadataReferenceID: active.ID,
				metadataPlan:        plan.Key,
			},
		},
	}
	if plan.FreeTrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(plan.FreeTrialDays)
	}

	session, err := s.gateway.NewCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "checkout session created",
		"organization_id", active.ID,
		"user_id", userID,
		"plan", plan.Key,
		"lookup_key", lookupKey,
	)

	return &CheckoutResponse{URL: session.URL, SessionID: session.ID}, nil
}

// Portal opens the Stripe billing portal for the caller's customer.
func (s *Service) Portal(ctx context.Context, userID string) (*PortalResponse, error) {
	customerID, err := s.customers.StripeCustomerID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, ErrNoCustomer
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(s.cfg.PortalReturnURL),
	}
	session, err := s.gateway.NewPortalSession(ctx, params)
	if err != nil {
		return nil, err
	}

	return &PortalResponse{URL: session.URL}, nil
}

// Subscription returns the active organization's subscription.
func (s *Service) Subscription(ctx context.Context, userID string) (*SubscriptionResponse, error) {
	active, err := s.orgs.Active(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.GetByReference(ctx, active.ID)
	if err != nil {
		return nil, err
	}

	resp := toSubscriptionResponse(*sub)
	return &resp, nil
}

// HandleWebhook verifies a Stripe event and mirrors subscription changes
// into the subscriptions table. Unhandled event types are acknowledged and
// ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		s.metrics.IncWebhookEvent("unknown", "invalid")
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	switch eventType {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		var sub stripe.Subscription
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			err = s.syncSubscription(ctx, &sub, "")
		}

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &session); err == nil {
			err = s.syncCheckout(ctx, &session)
		}

	default:
		s.metrics.IncWebhookEvent(eventType, "ignored")
		return nil
	}

	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("handle %s: %w", eventType, err)
	}

	s.metrics.IncWebhookEvent(eventType, "processed")
	slog.InfoContext(ctx, "stripe webhook processed",
		"event_id", event.ID,
		"type", eventType,
	)
	return nil
}

func (s *Service) syncCheckout(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.Mode != stripe.CheckoutSessionModeSubscription || session.Subscription == nil {
		return nil
	}

	sub, err := s.gateway.GetSubscription(ctx, session.Subscription.ID)
	if err != nil {
		return err
	}

	return s.syncSubscription(ctx, sub, session.ClientReferenceID)
}

// syncSubscription upserts sub. The organization comes from the
// subscription metadata, then fallbackRef, then an existing row.
func (s *Service) syncSubscription(
	ctx context.Context,
	sub *stripe.Subscription,
	fallbackRef string,
) error {
	ref := sub.Metadata[metadataReferenceID]
	if ref == "" {
		ref = fallbackRef
	}
	if ref == "" {
		existing, err := s.repo.GetByStripeID(ctx, sub.ID)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "subscription without organization reference",
				"stripe_subscription_id", sub.ID,
			)
			return nil
		}
		if err != nil {
			return err
		}
		ref = existing.ReferenceID
	}

	row := fromStripe(sub, ref)
	return s.repo.Upsert(ctx, &row)
}

// DeleteCustomersByEmail removes every Stripe customer registered with
// email, whatever the local records say.
func (s *Service) DeleteCustomersByEmail(
	ctx context.Context,
	email string,
) ([]DeletedCustomer, error) {
	customers, err := s.gateway.CustomersByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	out := make([]DeletedCustomer, 0, len(customers))
	for _, c := range customers {
		if err := s.gateway.DeleteCustomer(ctx, c.ID); err != nil {
			s.metrics.AddStripeCustomersDeleted(len(out))
			return out, err
		}

		d := DeletedCustomer{ID: c.ID, Email: c.Email, Subscriptions: []string{}}
		if c.Subscriptions != nil {
			for _, sub := range c.Subscriptions.Data {
				d.Subscriptions = append(d.Subscriptions, sub.ID)
			}
		}
		out = append(out, d)
	}

	s.metrics.AddStripeCustomersDeleted(len(out))
	return out, nil
}

func (s *Service) ensureCustomer(ctx context.Context, userID string) (string, error) {
	existing, err := s.customers.StripeCustomerID(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	user, err := s.customers.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.Name),
		Metadata: map[string]string{metadataUserID: user.ID},
	}
	customer, err := s.gateway.CreateCustomer(ctx, params)
	if err != nil {
		return "", err
	}

	if err := s.customers.SetStripeCustomerID(ctx, userID, customer.ID); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "stripe customer created",
		"user_id", userID,
		"customer_id", customer.ID,
	)
	return customer.ID, nil
}

func fromStripe(sub *stripe.Subscription, referenceID string) Subscription {
	row := Subscription{
		ID:                   uuid.New().String(),
		ReferenceID:          referenceID,
		StripeSubscriptionID: stripe.String(sub.ID),
		Plan:                 planKey(sub),
		Status:               string(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		row.StripeCustomerID = stripe.String(sub.Customer.ID)
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		row.TrialEnd = &t
	}
	return row
}

func planKey(sub *stripe.Subscription) string {
	if key := sub.Metadata[metadataPlan]; key != "" {
		return key
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if p, err := FindByLookupKey(item.Price.LookupKey); err == nil {
				return p.Key
			}
		}
	}
	return "unknown"
}
