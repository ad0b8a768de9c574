// AngelaMos | 2026
// client.go

// Package e2e drives a running deployment through its public HTTP API the
// way a signed-in user would. Scenarios live behind the e2e build tag.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carterperez-dev/templates/saas-backend/internal/auth"
	"github.com/carterperez-dev/templates/saas-backend/internal/billing"
	"github.com/carterperez-dev/templates/saas-backend/internal/fixture"
	"github.com/carterperez-dev/templates/saas-backend/internal/invitation"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 250 * time.Millisecond
)

var ErrNoMagicLink = errors.New("magic link not exposed by server")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client holds one user's session against a deployment. It is not safe for
// concurrent use; scenarios run serially.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	timeout  time.Duration
	interval time.Duration

	email string
	token string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithPolling sets how long assertions wait for state to appear.
func WithPolling(timeout, interval time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = timeout
		cl.interval = interval
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:  u,
		http:     &http.Client{Timeout: 30 * time.Second},
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Email is the address of the signed-in user, empty before Login.
func (c *Client) Email() string {
	return c.email
}

// DeleteUser resets all state for email through the cleanup endpoint.
func (c *Client) DeleteUser(ctx context.Context, email string) (*fixture.DeletedResponse, error) {
	var out fixture.DeletedResponse
	path := "/api/e2e/delete/user/" + url.PathEscape(email)

	status, body, err := c.send(ctx, http.MethodPost, path, nil, false)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode cleanup response: %w", err)
	}
	if status != http.StatusOK || !out.Success {
		return &out, &APIError{Status: status, Message: out.Message}
	}
	return &out, nil
}

// Login requests a magic link and follows it. The server must expose the
// link in its response, which only non-production deployments do. A rate
// limited request is retried until the client timeout.
func (c *Client) Login(ctx context.Context, email string) error {
	var link auth.MagicLinkResponse
	err := c.eventually(ctx, "request magic link", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/v1/auth/magic-link", auth.MagicLinkRequest{Email: email}, &link)
	})
	if err != nil {
		return err
	}
	if link.MagicLink == "" {
		return ErrNoMagicLink
	}

	u, err := url.Parse(link.MagicLink)
	if err != nil {
		return fmt.Errorf("parse magic link: %w", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		return fmt.Errorf("magic link %q has no token", link.MagicLink)
	}

	c.token = ""
	var session auth.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/magic-link/verify", auth.VerifyRequest{Token: token}, &session); err != nil {
		return fmt.Errorf("verify magic link: %w", err)
	}

	c.email = session.User.Email
	c.token = session.Tokens.AccessToken
	return nil
}

// InviteUsers sends one batch the way the invitation form does: addresses
// joined into a single comma separated field.
func (c *Client) InviteUsers(ctx context.Context, emails []string, role string) (*invitation.SendResult, error) {
	var out invitation.SendResult
	req := invitation.SendRequest{Emails: strings.Join(emails, ", "), Role: role}
	if err := c.do(ctx, http.MethodPost, "/v1/organization/invitations", req, &out); err != nil {
		return nil, fmt.Errorf("invite users: %w", err)
	}
	return &out, nil
}

// SentInvitations lists what the active organization has sent.
func (c *Client) SentInvitations(ctx context.Context) ([]invitation.InvitationResponse, error) {
	var out invitation.InvitationsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/organization/invitations", nil, &out); err != nil {
		return nil, err
	}
	return out.Invitations, nil
}

// ReceivedInvitations lists invitations waiting for the signed-in user.
func (c *Client) ReceivedInvitations(ctx context.Context) ([]invitation.InvitationResponse, error) {
	var out invitation.InvitationsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/invitations", nil, &out); err != nil {
		return nil, err
	}
	return out.Invitations, nil
}

// VerifyInvitations waits until every expected address shows up among the
// active organization's sent invitations.
func (c *Client) VerifyInvitations(ctx context.Context, expected []string) error {
	return c.eventually(ctx, "verify invitations", func(ctx context.Context) error {
		sent, err := c.SentInvitations(ctx)
		if err != nil {
			return err
		}

		have := make(map[string]bool, len(sent))
		for _, inv := range sent {
			have[strings.ToLower(inv.Email)] = true
		}

		var missing []string
		for _, email := range expected {
			if !have[strings.ToLower(email)] {
				missing = append(missing, email)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("not listed: %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

// AcceptInvitations accepts the pending invitation from each inviter and
// waits until none of them is pending any more.
func (c *Client) AcceptInvitations(ctx context.Context, inviters []string) error {
	return c.respond(ctx, inviters, "accept")
}

func (c *Client) RejectInvitations(ctx context.Context, inviters []string) error {
	return c.respond(ctx, inviters, "reject")
}

func (c *Client) respond(ctx context.Context, inviters []string, action string) error {
	for _, inviter := range inviters {
		var id string
		err := c.eventually(ctx, action+" invitation from "+inviter, func(ctx context.Context) error {
			inv, err := c.pendingFrom(ctx, inviter)
			if err != nil {
				return err
			}
			id = inv.ID
			return nil
		})
		if err != nil {
			return err
		}

		path := "/v1/invitations/" + url.PathEscape(id) + "/" + action
		if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
			return fmt.Errorf("%s invitation from %s: %w", action, inviter, err)
		}
	}

	return c.eventually(ctx, action+" invitations settle", func(ctx context.Context) error {
		for _, inviter := range inviters {
			if _, err := c.pendingFrom(ctx, inviter); err == nil {
				return fmt.Errorf("invitation from %s still pending", inviter)
			}
		}
		return nil
	})
}

func (c *Client) pendingFrom(ctx context.Context, inviter string) (*invitation.InvitationResponse, error) {
	received, err := c.ReceivedInvitations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range received {
		if strings.EqualFold(received[i].InviterEmail, inviter) {
			return &received[i], nil
		}
	}
	return nil, fmt.Errorf("no pending invitation from %s", inviter)
}

func (c *Client) Organizations(ctx context.Context) ([]organization.OrganizationResponse, error) {
	var out []organization.OrganizationResponse
	if err := c.do(ctx, http.MethodGet, "/v1/organizations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ActiveOrganization(ctx context.Context) (*organization.OrganizationResponse, error) {
	var out organization.OrganizationResponse
	if err := c.do(ctx, http.MethodGet, "/v1/organization", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SwitchOrganization(ctx context.Context, organizationID string) error {
	req := organization.SwitchRequest{OrganizationID: organizationID}
	if err := c.do(ctx, http.MethodPost, "/v1/organizations/active", req, nil); err != nil {
		return fmt.Errorf("switch organization: %w", err)
	}
	return nil
}

// MemberCount reads the active organization's member count.
func (c *Client) MemberCount(ctx context.Context) (int, error) {
	org, err := c.ActiveOrganization(ctx)
	if err != nil {
		return 0, err
	}
	if org.MemberCount == nil {
		return 0, errors.New("member count missing from response")
	}
	return *org.MemberCount, nil
}

// ExpectMemberCount waits until the active organization has want members.
func (c *Client) ExpectMemberCount(ctx context.Context, want int) error {
	return c.eventually(ctx, "member count", func(ctx context.Context) error {
		got, err := c.MemberCount(ctx)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("have %d members, want %d", got, want)
		}
		return nil
	})
}

// Subscribe starts a hosted checkout for the plan price lookup key.
func (c *Client) Subscribe(ctx context.Context, lookupKey string) (*billing.CheckoutResponse, error) {
	var out billing.CheckoutResponse
	if err := c.do(ctx, http.MethodPost, "/v1/billing/checkout", billing.CheckoutRequest{LookupKey: lookupKey}, &out); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &out, nil
}

func (c *Client) Subscription(ctx context.Context) (*billing.SubscriptionResponse, error) {
	var out billing.SubscriptionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/billing/subscription", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySubscription waits until the active organization's subscription
// shows planName with status, both compared case-insensitively.
func (c *Client) VerifySubscription(ctx context.Context, planName, status string) error {
	return c.eventually(ctx, "verify subscription", func(ctx context.Context) error {
		sub, err := c.Subscription(ctx)
		if err != nil {
			return err
		}
		if !strings.Contains(strings.ToLower(sub.PlanName), strings.ToLower(planName)) {
			return fmt.Errorf("plan %q, want %q", sub.PlanName, planName)
		}
		if !strings.EqualFold(sub.Status, status) {
			return fmt.Errorf("status %q, want %q", sub.Status, status)
		}
		return nil
	})
}

// do sends an authenticated JSON request and unwraps the success envelope
// into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	status, body, err := c.send(ctx, method, path, in, true)
	if err != nil {
		return err
	}

	if status == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	}

	if status < 200 || status > 299 || !env.Success {
		apiErr := &APIError{Status: status}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in any, authed bool) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return resp.StatusCode, raw, nil
}
