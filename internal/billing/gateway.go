// AngelaMos | 2026
// gateway.go

package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrBillingDisabled = errors.New("billing is not configured")

// Gateway is the slice of the Stripe API the service uses.
type Gateway interface {
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	PriceByLookupKey(ctx context.Context, lookupKey string) (*stripe.Price, error)
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CustomersByEmail(ctx context.Context, email string) ([]*stripe.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
}

type StripeGateway struct {
	api    *client.API
	tracer trace.Tracer
}

func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, tracer: otel.Tracer("saas-backend/billing")}
}

// traced runs one Stripe call inside a client span.
func traced[T any](
	ctx context.Context,
	tracer trace.Tracer,
	op string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, "stripe."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

func (g *StripeGateway) CreateCustomer(
	ctx context.Context,
	params *stripe.CustomerParams,
) (*stripe.Customer, error) {
	c, err := traced(ctx, g.tracer, "customers.create", func(ctx context.Context) (*stripe.Customer, error) {
		params.Context = ctx
		return g.api.Customers.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("create stripe customer: %w", err)
	}
	return c, nil
}

func (g *StripeGateway) PriceByLookupKey(
	ctx context.Context,
	lookupKey string,
) (*stripe.Price, error) {
	p, err := traced(ctx, g.tracer, "prices.list", func(ctx context.Context) (*stripe.Price, error) {
		params := &stripe.PriceListParams{
			LookupKeys: stripe.StringSlice([]string{lookupKey}),
			Active:     stripe.Bool(true),
		}
		params.Context = ctx

		it := g.api.Prices.List(params)
		if it.Next() {
			return it.Price(), nil
		}
		return nil, it.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list stripe prices: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("price %q: %w", lookupKey, ErrPlanNotFound)
	}
	return p, nil
}

func (g *StripeGateway) NewCheckoutSession(
	ctx context.Context,
	params *stripe.CheckoutSessionParams,
) (*stripe.CheckoutSession, error) {
	s, err := traced(ctx, g.tracer, "checkout_sessions.create", func(ctx context.Context) (*stripe.CheckoutSession, error) {
		params.Context = ctx
		return g.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return s, nil
}

func (g *StripeGateway) NewPortalSession(
	ctx context.Context,
	params *stripe.BillingPortalSessionParams,
) (*stripe.BillingPortalSession, error) {
	s, err := traced(ctx, g.tracer, "billing_portal_sessions.create", func(ctx context.Context) (*stripe.BillingPortalSession, error) {
		params.Context = ctx
		return g.api.BillingPortalSessions.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("create portal session: %w", err)
	}
	return s, nil
}

func (g *StripeGateway) GetSubscription(
	ctx context.Context,
	id string,
) (*stripe.Subscription, error) {
	sub, err := traced(ctx, g.tracer, "subscriptions.get", func(ctx context.Context) (*stripe.Subscription, error) {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		return g.api.Subscriptions.Get(id, params)
	})
	if err != nil {
		return nil, fmt.Errorf("get stripe subscription: %w", err)
	}
	return sub, nil
}

// CustomersByEmail lists every customer with email, subscriptions expanded.
func (g *StripeGateway) CustomersByEmail(
	ctx context.Context,
	email string,
) ([]*stripe.Customer, error) {
	out, err := traced(ctx, g.tracer, "customers.list", func(ctx context.Context) ([]*stripe.Customer, error) {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Context = ctx
		params.AddExpand("data.subscriptions")

		var out []*stripe.Customer
		it := g.api.Customers.List(params)
		for it.Next() {
			out = append(out, it.Customer())
		}
		return out, it.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list stripe customers: %w", err)
	}
	return out, nil
}

func (g *StripeGateway) DeleteCustomer(ctx context.Context, id string) error {
	_, err := traced(ctx, g.tracer, "customers.delete", func(ctx context.Context) (*stripe.Customer, error) {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		return g.api.Customers.Del(id, params)
	})
	if err != nil {
		return fmt.Errorf("delete stripe customer %s: %w", id, err)
	}
	return nil
}

// DisabledGateway stands in when no Stripe key is configured. Lookups by
// email find nothing so cleanup still works; everything else fails with
// ErrBillingDisabled.
type DisabledGateway struct{}

func (DisabledGateway) CreateCustomer(context.Context, *stripe.CustomerParams) (*stripe.Customer, error) {
	return nil, ErrBillingDisabled
}

func (DisabledGateway) PriceByLookupKey(context.Context, string) (*stripe.Price, error) {
	return nil, ErrBillingDisabled
}

func (DisabledGateway) NewCheckoutSession(
	context.Context,
	*stripe.CheckoutSessionParams,
) (*stripe.CheckoutSession, error) {
	return nil, ErrBillingDisabled
}

func (DisabledGateway) NewPortalSession(
	context.Context,
	*stripe.BillingPortalSessionParams,
) (*stripe.BillingPortalSession, error) {
	return nil, ErrBillingDisabled
}

func (DisabledGateway) GetSubscription(context.Context, string) (*stripe.Subscription, error) {
	return nil, ErrBillingDisabled
}

func (DisabledGateway) CustomersByEmail(context.Context, string) ([]*stripe.Customer, error) {
	return nil, nil
}

func (DisabledGateway) DeleteCustomer(context.Context, string) error {
	return ErrBillingDisabled
}

var (
	_ Gateway = (*StripeGateway)(nil)
	_ Gateway = DisabledGateway{}
)
