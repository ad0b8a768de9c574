// AngelaMos | 2026
// service.go

package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/carterperez-dev/templates/saas-backend/internal/auth"
	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/mail"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

var (
	ErrNotPending        = errors.New("invitation is no longer pending")
	ErrEmailMismatch     = errors.New("invitation was sent to a different address")
	ErrCannotInviteOwner = errors.New("owners cannot be invited")
	ErrNoRecipients      = errors.New("no email addresses given")
)

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*auth.UserInfo, error)
}

type OrganizationLookup interface {
	Active(ctx context.Context, userID string) (*organization.ActiveOrganization, error)
}

type Recorder interface {
	IncInvitation(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) IncInvitation(string) {}

type Deps struct {
	Repo    Repository
	Tx      TxRunner
	Users   UserLookup
	Orgs    OrganizationLookup
	Mailer  mail.Mailer
	Metrics Recorder
}

type Service struct {
	repo     Repository
	tx       TxRunner
	users    UserLookup
	orgs     OrganizationLookup
	mailer   mail.Mailer
	metrics  Recorder
	validate *validator.Validate
}

func NewService(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	return &Service{
		repo:     d.Repo,
		tx:       d.Tx,
		users:    d.Users,
		orgs:     d.Orgs,
		mailer:   d.Mailer,
		metrics:  d.Metrics,
		validate: validator.New(),
	}
}

var emailSeparators = regexp.MustCompile(`[\s,;]+`)

// ParseEmails splits raw on commas, semicolons and whitespace, lower-cases
// and de-duplicates the addresses, keeping first-seen order. Every address
// must be valid.
func ParseEmails(v *validator.Validate, raw string) ([]string, error) {
	seen := map[string]struct{}{}
	var out, invalid []string

	for _, part := range emailSeparators.Split(raw, -1) {
		email := strings.ToLower(strings.TrimSpace(part))
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		if err := v.Var(email, "email,max=255"); err != nil {
			invalid = append(invalid, email)
			continue
		}
		out = append(out, email)
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf(
			"invalid email address(es) %s: %w",
			strings.Join(invalid, ", "),
			core.ErrInvalidInput,
		)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}

	return out, nil
}

// Send invites every address in req to the inviter's active organization.
// Addresses that belong to the inviter, to an existing member or to an
// address with a pending invitation from the same organization are skipped.
// All invitations are created in one transaction; mail goes out after it
// commits.
func (s *Service) Send(
	ctx context.Context,
	inviterID string,
	req SendRequest,
) (*SendResult, error) {
	emails, err := ParseEmails(s.validate, req.Emails)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = organization.RoleMember
	}
	if role == organization.RoleOwner {
		return nil, ErrCannotInviteOwner
	}
	if !organization.ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q: %w", role, core.ErrInvalidInput)
	}

	active, err := s.orgs.Active(ctx, inviterID)
	if err != nil {
		return nil, err
	}
	if !organization.CanInvite(active.Role) {
		return nil, fmt.Errorf("send invitations: %w", core.ErrForbidden)
	}

	inviter, err := s.users.GetByID(ctx, inviterID)
	if err != nil {
		return nil, err
	}

	result := &SendResult{
		OrganizationID: active.ID,
		Created:        []InvitationResponse{},
		Skipped:        []Skipped{},
	}
	var created []Invitation

	err = s.tx.WithTx(ctx, func(stores Stores) error {
		invitations := stores.Invitations()
		orgs := stores.Organizations()

		for _, email := range emails {
			if strings.EqualFold(email, inviter.Email) {
				result.Skipped = append(result.Skipped, Skipped{Email: email, Reason: SkipSelf})
				continue
			}

			member, err := orgs.IsMemberByEmail(ctx, active.ID, email)
			if err != nil {
				return err
			}
			if member {
				result.Skipped = append(result.Skipped, Skipped{Email: email, Reason: SkipAlreadyMember})
				continue
			}

			pending, err := invitations.HasPending(ctx, active.ID, email)
			if err != nil {
				return err
			}
			if pending {
				result.Skipped = append(result.Skipped, Skipped{Email: email, Reason: SkipAlreadyInvited})
				continue
			}

			inv := Invitation{
				ID:             uuid.New().String(),
				OrganizationID: active.ID,
				Email:          email,
				Role:           role,
				Status:         StatusPending,
				InviterID:      &inviter.ID,
			}
			if err := invitations.Create(ctx, &inv); err != nil {
				return err
			}
			created = append(created, inv)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, fmt.Errorf("send invitations: concurrent invite: %w", core.ErrConflict)
		}
		return nil, fmt.Errorf("send invitations: %w", err)
	}

	for _, inv := range created {
		result.Created = append(result.Created, toResponse(inv))
		s.metrics.IncInvitation("created")

		msg := mail.InvitationMessage(inv.Email, active.Name, inviter.Email, inv.Role)
		if err := s.mailer.Send(ctx, msg); err != nil {
			slog.WarnContext(ctx, "invitation mail failed",
				"invitation_id", inv.ID,
				"error", err,
			)
		}
	}
	for range result.Skipped {
		s.metrics.IncInvitation("skipped")
	}

	slog.InfoContext(ctx, "invitations sent",
		"organization_id", active.ID,
		"inviter_id", inviter.ID,
		"created", len(result.Created),
		"skipped", len(result.Skipped),
	)

	return result, nil
}

// Accept adds the caller to the inviting organization. The invitation row
// is locked for the whole transaction and the membership insert ignores an
// existing membership, so concurrent accepts yield one membership.
func (s *Service) Accept(ctx context.Context, userID, invitationID string) (*Invitation, error) {
	return s.respond(ctx, userID, invitationID, StatusAccepted)
}

// Reject marks the invitation rejected without touching memberships.
func (s *Service) Reject(ctx context.Context, userID, invitationID string) (*Invitation, error) {
	return s.respond(ctx, userID, invitationID, StatusRejected)
}

func (s *Service) respond(
	ctx context.Context,
	userID, invitationID, status string,
) (*Invitation, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var inv *Invitation
	err = s.tx.WithTx(ctx, func(stores Stores) error {
		inv, err = stores.Invitations().GetForUpdate(ctx, invitationID)
		if err != nil {
			return err
		}
		if !inv.IsPending() {
			return ErrNotPending
		}
		if !strings.EqualFold(inv.Email, user.Email) {
			return ErrEmailMismatch
		}

		if status == StatusAccepted {
			if _, err := stores.Organizations().AddMember(ctx, &organization.Member{
				ID:             uuid.New().String(),
				OrganizationID: inv.OrganizationID,
				UserID:         user.ID,
				Role:           inv.Role,
			}); err != nil {
				return err
			}
		}

		if err := stores.Invitations().UpdateStatus(ctx, inv.ID, status); err != nil {
			return err
		}
		inv.Status = status
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s invitation: %w", verb(status), err)
	}

	s.metrics.IncInvitation(status)
	slog.InfoContext(ctx, "invitation "+status,
		"invitation_id", inv.ID,
		"organization_id", inv.OrganizationID,
		"user_id", user.ID,
	)

	return inv, nil
}

// Cancel withdraws a pending invitation of the caller's active organization.
func (s *Service) Cancel(ctx context.Context, userID, invitationID string) error {
	active, err := s.orgs.Active(ctx, userID)
	if err != nil {
		return err
	}
	if !organization.CanInvite(active.Role) {
		return fmt.Errorf("cancel invitation: %w", core.ErrForbidden)
	}

	err = s.tx.WithTx(ctx, func(stores Stores) error {
		inv, err := stores.Invitations().GetForUpdate(ctx, invitationID)
		if err != nil {
			return err
		}
		if inv.OrganizationID != active.ID {
			return core.ErrNotFound
		}
		if !inv.IsPending() {
			return ErrNotPending
		}
		return stores.Invitations().UpdateStatus(ctx, inv.ID, StatusCanceled)
	})
	if err != nil {
		return fmt.Errorf("cancel invitation: %w", err)
	}

	s.metrics.IncInvitation(StatusCanceled)
	slog.InfoContext(ctx, "invitation canceled",
		"invitation_id", invitationID,
		"organization_id", active.ID,
		"user_id", userID,
	)
	return nil
}

// ListSent returns every invitation of the caller's active organization.
// Only owners and admins see them.
func (s *Service) ListSent(ctx context.Context, userID string) ([]Detail, error) {
	active, err := s.orgs.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !organization.CanInvite(active.Role) {
		return nil, fmt.Errorf("list invitations: %w", core.ErrForbidden)
	}

	return s.repo.ListByOrganization(ctx, active.ID)
}

// ListReceived returns pending invitations addressed to the caller from any
// organization.
func (s *Service) ListReceived(ctx context.Context, userID string) ([]Detail, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.repo.ListPendingForEmail(ctx, strings.ToLower(user.Email))
}

func verb(status string) string {
	if status == StatusAccepted {
		return "accept"
	}
	return "reject"
}
