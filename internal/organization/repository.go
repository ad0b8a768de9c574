// AngelaMos | 2026
// repository.go

package organization

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
)

type Repository interface {
	Create(ctx context.Context, org *Organization) error
	Get(ctx context.Context, id string) (*Organization, error)
	AddMember(ctx context.Context, m *Member) (bool, error)
	GetMembership(ctx context.Context, orgID, userID string) (*Member, error)
	GetMember(ctx context.Context, memberID string) (*Member, error)
	ListForUser(ctx context.Context, userID string) ([]Membership, error)
	ListMembers(ctx context.Context, orgID string) ([]MemberDetail, error)
	CountMembers(ctx context.Context, orgID string) (int, error)
	CountOwners(ctx context.Context, orgID string) (int, error)
	RemoveMember(ctx context.Context, memberID string) error
	IsMemberByEmail(ctx context.Context, orgID, email string) (bool, error)
	GetActiveOrganizationID(ctx context.Context, userID string) (*string, error)
	SetActiveOrganizationID(ctx context.Context, userID string, orgID *string) error
	LockUser(ctx context.Context, userID string) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, org *Organization) error {
	query := `
		INSERT INTO organizations (id, name, slug)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &org.CreatedAt, query, org.ID, org.Name, org.Slug)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create organization: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create organization: %w", err)
	}

	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*Organization, error) {
	query := `SELECT id, name, slug, created_at FROM organizations WHERE id = $1`

	var org Organization
	err := r.db.GetContext(ctx, &org, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get organization: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}

	return &org, nil
}

// AddMember inserts m unless the user already belongs to the organization.
// It reports whether a row was inserted; an existing membership is left
// untouched, role included.
func (r *repository) AddMember(ctx context.Context, m *Member) (bool, error) {
	query := `
		INSERT INTO members (id, organization_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, user_id) DO NOTHING
		RETURNING created_at`

	err := r.db.GetContext(ctx, &m.CreatedAt, query,
		m.ID,
		m.OrganizationID,
		m.UserID,
		m.Role,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if core.IsForeignKeyError(err) {
		return false, fmt.Errorf("add member: organization or user gone: %w", core.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}

	return true, nil
}

func (r *repository) GetMembership(
	ctx context.Context,
	orgID, userID string,
) (*Member, error) {
	query := `
		SELECT id, organization_id, user_id, role, created_at
		FROM members
		WHERE organization_id = $1 AND user_id = $2`

	var m Member
	err := r.db.GetContext(ctx, &m, query, orgID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get membership: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}

	return &m, nil
}

func (r *repository) GetMember(ctx context.Context, memberID string) (*Member, error) {
	query := `
		SELECT id, organization_id, user_id, role, created_at
		FROM members
		WHERE id = $1`

	var m Member
	err := r.db.GetContext(ctx, &m, query, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get member: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	return &m, nil
}

func (r *repository) ListForUser(
	ctx context.Context,
	userID string,
) ([]Membership, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.created_at, m.role
		FROM members m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY m.created_at, o.name`

	var out []Membership
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, fmt.Errorf("list organizations for user: %w", err)
	}

	return out, nil
}

func (r *repository) ListMembers(
	ctx context.Context,
	orgID string,
) ([]MemberDetail, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at,
		       u.email, u.name
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at`

	var out []MemberDetail
	if err := r.db.SelectContext(ctx, &out, query, orgID); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	return out, nil
}

func (r *repository) CountMembers(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM members WHERE organization_id = $1`, orgID)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

func (r *repository) CountOwners(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM members WHERE organization_id = $1 AND role = 'owner'`, orgID)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

func (r *repository) RemoveMember(ctx context.Context, memberID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, memberID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("remove member: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) IsMemberByEmail(
	ctx context.Context,
	orgID, email string,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM members m
			JOIN users u ON u.id = m.user_id
			WHERE m.organization_id = $1 AND u.email = $2
		)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, orgID, email); err != nil {
		return false, fmt.Errorf("check membership by email: %w", err)
	}

	return exists, nil
}

// LockUser holds the user row until the surrounding transaction ends, so
// membership checks for one user run one at a time.
func (r *repository) LockUser(ctx context.Context, userID string) error {
	query := `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	var id string
	err := r.db.GetContext(ctx, &id, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock user: %w", core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}

	return nil
}

func (r *repository) GetActiveOrganizationID(
	ctx context.Context,
	userID string,
) (*string, error) {
	query := `SELECT active_organization_id::text FROM users WHERE id = $1`

	var id sql.NullString
	err := r.db.GetContext(ctx, &id, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get active organization: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get active organization: %w", err)
	}
	if !id.Valid {
		return nil, nil
	}

	return &id.String, nil
}

func (r *repository) SetActiveOrganizationID(
	ctx context.Context,
	userID string,
	orgID *string,
) error {
	query := `
		UPDATE users
		SET active_organization_id = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, userID, orgID)
	if err != nil {
		return fmt.Errorf("set active organization: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set active organization: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set active organization: %w", core.ErrNotFound)
	}

	return nil
}
