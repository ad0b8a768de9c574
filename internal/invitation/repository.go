// AngelaMos | 2026
// repository.go

package invitation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

type Repository interface {
	Create(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, id string) (*Invitation, error)
	GetForUpdate(ctx context.Context, id string) (*Invitation, error)
	HasPending(ctx context.Context, orgID, email string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	ListByOrganization(ctx context.Context, orgID string) ([]Detail, error)
	ListPendingForEmail(ctx context.Context, email string) ([]Detail, error)
}

// Stores exposes the repositories a transactional invitation operation
// touches, all bound to the same transaction.
type Stores interface {
	Invitations() Repository
	Organizations() organization.Repository
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores Stores) error) error
}

type txStores struct {
	tx *sqlx.Tx
}

func (s txStores) Invitations() Repository {
	return NewRepository(s.tx)
}

func (s txStores) Organizations() organization.Repository {
	return organization.NewRepository(s.tx)
}

type dbTxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) TxRunner {
	return &dbTxRunner{db: db}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores Stores) error) error {
	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(txStores{tx: tx})
	})
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const invitationColumns = `
	i.id, i.organization_id, i.email, i.role, i.status, i.inviter_id,
	i.created_at, i.updated_at`

const detailSelect = `
	SELECT ` + invitationColumns + `,
	       o.name AS organization_name,
	       u.email AS inviter_email
	FROM invitations i
	JOIN organizations o ON o.id = i.organization_id
	LEFT JOIN users u ON u.id = i.inviter_id`

// Create inserts a pending invitation. A second pending invitation for the
// same organization and address violates a partial unique index and comes
// back as core.ErrDuplicateKey.
func (r *repository) Create(ctx context.Context, inv *Invitation) error {
	query := `
		INSERT INTO invitations (id, organization_id, email, role, status, inviter_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		inv.ID,
		inv.OrganizationID,
		inv.Email,
		inv.Role,
		inv.Status,
		inv.InviterID,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create invitation: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create invitation: %w", err)
	}

	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*Invitation, error) {
	return r.get(ctx, `SELECT `+invitationColumns+` FROM invitations i WHERE i.id = $1`, id)
}

// GetForUpdate locks the invitation row until the transaction ends, so two
// concurrent responses to the same invitation run one after the other.
func (r *repository) GetForUpdate(ctx context.Context, id string) (*Invitation, error) {
	return r.get(ctx, `SELECT `+invitationColumns+` FROM invitations i WHERE i.id = $1 FOR UPDATE`, id)
}

func (r *repository) get(ctx context.Context, query, id string) (*Invitation, error) {
	var inv Invitation
	err := r.db.GetContext(ctx, &inv, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get invitation: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return &inv, nil
}

func (r *repository) HasPending(ctx context.Context, orgID, email string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM invitations
			WHERE organization_id = $1 AND email = $2 AND status = 'pending'
		)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, orgID, email); err != nil {
		return false, fmt.Errorf("check pending invitation: %w", err)
	}
	return exists, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE invitations
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update invitation status: %w", ErrNotPending)
	}

	return nil
}

func (r *repository) ListByOrganization(ctx context.Context, orgID string) ([]Detail, error) {
	query := detailSelect + `
		WHERE i.organization_id = $1
		ORDER BY i.created_at DESC`

	var out []Detail
	if err := r.db.SelectContext(ctx, &out, query, orgID); err != nil {
		return nil, fmt.Errorf("list organization invitations: %w", err)
	}
	return out, nil
}

func (r *repository) ListPendingForEmail(ctx context.Context, email string) ([]Detail, error) {
	query := detailSelect + `
		WHERE i.email = $1 AND i.status = 'pending'
		ORDER BY i.created_at`

	var out []Detail
	if err := r.db.SelectContext(ctx, &out, query, email); err != nil {
		return nil, fmt.Errorf("list received invitations: %w", err)
	}
	return out, nil
}
