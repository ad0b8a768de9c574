// AngelaMos | 2026
// stripe.go

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81/webhook"
)

// SubscriptionEvent describes a customer.subscription.* event to deliver
// when no browser can complete the hosted checkout page.
type SubscriptionEvent struct {
	Type           string
	SubscriptionID string
	CustomerID     string
	ReferenceID    string
	PlanKey        string
	LookupKey      string
	Status         string
	TrialDays      int
}

// DeliverSubscriptionEvent signs ev with the endpoint secret and posts it to
// the webhook route, standing in for Stripe after a completed checkout.
func (c *Client) DeliverSubscriptionEvent(ctx context.Context, secret string, ev SubscriptionEvent) error {
	if ev.Type == "" {
		ev.Type = "customer.subscription.created"
	}
	if ev.SubscriptionID == "" {
		ev.SubscriptionID = "sub_e2e_" + uuid.NewString()[:8]
	}

	now := time.Now()
	object := map[string]any{
		"id":                   ev.SubscriptionID,
		"object":               "subscription",
		"status":               ev.Status,
		"cancel_at_period_end": false,
		"created":              now.Unix(),
		"metadata": map[string]string{
			"reference_id": ev.ReferenceID,
			"plan":         ev.PlanKey,
		},
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":     "si_e2e",
				"object": "subscription_item",
				"price": map[string]any{
					"id":         "price_e2e",
					"object":     "price",
					"lookup_key": ev.LookupKey,
				},
			}},
		},
	}
	if ev.CustomerID != "" {
		object["customer"] = ev.CustomerID
	}
	if ev.TrialDays > 0 {
		object["trial_end"] = now.Add(time.Duration(ev.TrialDays) * 24 * time.Hour).Unix()
	}

	payload, err := json.Marshal(map[string]any{
		"id":      "evt_e2e_" + uuid.NewString()[:8],
		"object":  "event",
		"type":    ev.Type,
		"created": now.Unix(),
		"data":    map[string]any{"object": object},
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: now,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL.String()+"/v1/billing/webhook", bytes.NewReader(signed.Payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}
	return nil
}
