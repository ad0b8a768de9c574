// AngelaMos | 2026
// service.go

package organization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
)

var (
	ErrNotMember      = errors.New("not a member of this organization")
	ErrLastOwner      = errors.New("organization must keep at least one owner")
	ErrNoOrganization = errors.New("user has no organization")
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}

type dbTxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) TxRunner {
	return &dbTxRunner{db: db}
}

func (r *dbTxRunner) WithTx(
	ctx context.Context,
	fn func(repo Repository) error,
) error {
	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(NewRepository(tx))
	})
}

type Service struct {
	repo Repository
	tx   TxRunner
}

func NewService(repo Repository, tx TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

// EnsureDefault gives a user with no memberships an organization of their
// own, owned by them and set active. Users that already belong somewhere
// only get an active organization filled in if it is missing. Concurrent
// calls for one user serialise on the user row.
func (s *Service) EnsureDefault(ctx context.Context, userID, name string) error {
	return s.tx.WithTx(ctx, func(repo Repository) error {
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		memberships, err := repo.ListForUser(ctx, userID)
		if err != nil {
			return err
		}

		if len(memberships) > 0 {
			active, err := repo.GetActiveOrganizationID(ctx, userID)
			if err != nil {
				return err
			}
			if active == nil {
				return repo.SetActiveOrganizationID(ctx, userID, &memberships[0].ID)
			}
			return nil
		}

		id := uuid.New().String()
		org := &Organization{
			ID:   id,
			Name: defaultName(name),
			Slug: slugify(name) + "-" + id[:8],
		}
		if err := repo.Create(ctx, org); err != nil {
			return err
		}

		if _, err := repo.AddMember(ctx, &Member{
			ID:             uuid.New().String(),
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           RoleOwner,
		}); err != nil {
			return err
		}

		if err := repo.SetActiveOrganizationID(ctx, userID, &org.ID); err != nil {
			return err
		}

		slog.InfoContext(ctx, "organization created",
			"organization_id", org.ID,
			"owner_id", userID,
		)
		return nil
	})
}

// Active resolves the caller's current organization. A missing or stale
// active organization falls back to the first membership.
func (s *Service) Active(ctx context.Context, userID string) (*ActiveOrganization, error) {
	memberships, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, fmt.Errorf("active organization: %w", ErrNoOrganization)
	}

	activeID, err := s.repo.GetActiveOrganizationID(ctx, userID)
	if err != nil {
		return nil, err
	}

	chosen := memberships[0]
	if activeID != nil {
		for _, m := range memberships {
			if m.ID == *activeID {
				chosen = m
				break
			}
		}
	}

	count, err := s.repo.CountMembers(ctx, chosen.ID)
	if err != nil {
		return nil, err
	}

	return &ActiveOrganization{
		Organization: chosen.Organization,
		Role:         chosen.Role,
		MemberCount:  count,
	}, nil
}

// Switch makes orgID the caller's active organization.
func (s *Service) Switch(
	ctx context.Context,
	userID, orgID string,
) (*ActiveOrganization, error) {
	if _, err := s.repo.GetMembership(ctx, orgID, userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("switch organization: %w", ErrNotMember)
		}
		return nil, err
	}

	if err := s.repo.SetActiveOrganizationID(ctx, userID, &orgID); err != nil {
		return nil, err
	}

	return s.Active(ctx, userID)
}

func (s *Service) List(ctx context.Context, userID string) ([]OrganizationResponse, error) {
	memberships, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	activeID := ""
	if len(memberships) > 0 {
		active, err := s.repo.GetActiveOrganizationID(ctx, userID)
		if err != nil {
			return nil, err
		}
		activeID = memberships[0].ID
		if active != nil && containsOrg(memberships, *active) {
			activeID = *active
		}
	}

	out := make([]OrganizationResponse, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, toOrganizationResponse(m, activeID))
	}
	return out, nil
}

// Detail returns orgID with its member count, visible to members only.
func (s *Service) Detail(
	ctx context.Context,
	userID, orgID string,
) (*ActiveOrganization, error) {
	m, err := s.repo.GetMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("organization detail: %w", ErrNotMember)
		}
		return nil, err
	}

	org, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	count, err := s.repo.CountMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return &ActiveOrganization{Organization: *org, Role: m.Role, MemberCount: count}, nil
}

func (s *Service) MemberCount(ctx context.Context, orgID string) (int, error) {
	return s.repo.CountMembers(ctx, orgID)
}

// Role returns userID's role in orgID, or ErrNotMember.
func (s *Service) Role(ctx context.Context, orgID, userID string) (string, error) {
	m, err := s.repo.GetMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", ErrNotMember
		}
		return "", err
	}
	return m.Role, nil
}

func (s *Service) Members(
	ctx context.Context,
	userID string,
) (*ActiveOrganization, []MemberDetail, error) {
	active, err := s.Active(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.repo.ListMembers(ctx, active.ID)
	if err != nil {
		return nil, nil, err
	}

	return active, members, nil
}

// RemoveMember removes memberID from the caller's active organization.
// Only owners and admins may remove, admins cannot remove owners, and the
// last owner always stays.
func (s *Service) RemoveMember(ctx context.Context, userID, memberID string) error {
	active, err := s.Active(ctx, userID)
	if err != nil {
		return err
	}
	if !CanManageMembers(active.Role) {
		return fmt.Errorf("remove member: %w", core.ErrForbidden)
	}

	return s.tx.WithTx(ctx, func(repo Repository) error {
		target, err := repo.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if target.OrganizationID != active.ID {
			return fmt.Errorf("remove member: %w", core.ErrNotFound)
		}

		if target.Role == RoleOwner {
			if active.Role != RoleOwner {
				return fmt.Errorf("remove member: %w", core.ErrForbidden)
			}
			owners, err := repo.CountOwners(ctx, active.ID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return fmt.Errorf("remove member: %w", ErrLastOwner)
			}
		}

		if err := repo.RemoveMember(ctx, memberID); err != nil {
			return err
		}

		slog.InfoContext(ctx, "member removed",
			"organization_id", active.ID,
			"member_id", memberID,
			"removed_by", userID,
		)
		return nil
	})
}

func containsOrg(ms []Membership, id string) bool {
	for _, m := range ms {
		if m.ID == id {
			return true
		}
	}
	return false
}

func defaultName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "My Organization"
	}
	return name + "'s Organization"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if slug == "" {
		return "org"
	}
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	return slug
}
