// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/saas-backend/internal/auth"
	"github.com/carterperez-dev/templates/saas-backend/internal/core"
)

// TxRunner runs fn in a transaction with a repository bound to it.
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

type Recorder interface {
	IncUserPurge(result string)
}

type nopRecorder struct{}

func (nopRecorder) IncUserPurge(string) {}

type Service struct {
	repo    Repository
	tx      TxRunner
	metrics Recorder
}

func NewService(repo Repository, tx TxRunner, metrics Recorder) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{repo: repo, tx: tx, metrics: metrics}
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) Create(
	ctx context.Context,
	email, name string,
) (*auth.UserInfo, error) {
	user := &User{
		ID:    uuid.New().String(),
		Email: normalizeEmail(email),
		Name:  strings.TrimSpace(name),
		Role:  RoleUser,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) IncrementTokenVersion(
	ctx context.Context,
	userID string,
) error {
	return s.repo.IncrementTokenVersion(ctx, userID)
}

// StripeCustomerID returns "" when the user has no customer yet.
func (s *Service) StripeCustomerID(
	ctx context.Context,
	userID string,
) (string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil {
		return "", nil
	}
	return *user.StripeCustomerID, nil
}

func (s *Service) SetStripeCustomerID(
	ctx context.Context,
	userID, customerID string,
) error {
	return s.repo.SetStripeCustomerID(ctx, userID, customerID)
}

// Purge hard deletes the user with email and everything only they own:
// organizations where they are the sole owner, subscriptions referencing
// those organizations or billed to the user's Stripe customer, and then the
// user row. Global admins are refused with core.ErrForbidden and nothing is
// changed. An unknown address yields core.ErrNotFound.
func (s *Service) Purge(ctx context.Context, email string) (*PurgeResult, error) {
	email = normalizeEmail(email)

	var result PurgeResult
	err := s.tx.WithTx(ctx, func(repo Repository) error {
		u, err := repo.LockByEmail(ctx, email)
		if err != nil {
			return err
		}
		if u.IsAdmin() {
			return fmt.Errorf("purge user: admin account: %w", core.ErrForbidden)
		}

		subs, err := repo.DeleteSubscriptionsFor(ctx, u.ID, u.StripeCustomerID)
		if err != nil {
			return err
		}

		orgs, err := repo.DeleteSoleOwnedOrganizations(ctx, u.ID)
		if err != nil {
			return err
		}

		n, err := repo.DeleteNonAdmin(ctx, u.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("purge user: %w", core.ErrNotFound)
		}

		result = PurgeResult{
			UserID:               u.ID,
			Email:                u.Email,
			SubscriptionsDeleted: subs,
			OrganizationsDeleted: orgs,
		}
		return nil
	})

	switch {
	case err == nil:
		s.metrics.IncUserPurge("deleted")
	case errors.Is(err, core.ErrNotFound):
		s.metrics.IncUserPurge("absent")
		return nil, err
	case errors.Is(err, core.ErrForbidden):
		s.metrics.IncUserPurge("refused")
		return nil, err
	default:
		s.metrics.IncUserPurge("error")
		return nil, fmt.Errorf("purge user: %w", err)
	}

	slog.InfoContext(ctx, "user purged",
		"user_id", result.UserID,
		"organizations_deleted", result.OrganizationsDeleted,
		"subscriptions_deleted", result.SubscriptionsDeleted,
	)

	return &result, nil
}

func (s *Service) PurgeByID(ctx context.Context, id string) (*PurgeResult, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Purge(ctx, user.Email)
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateUser(
	ctx context.Context,
	id string,
	req UpdateUserRequest,
) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateUserRole changes the global role and bumps the token version so
// tokens carrying the old role stop working.
func (s *Service) UpdateUserRole(
	ctx context.Context,
	id, role string,
) (*User, error) {
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf(
			"update role: invalid role %q: %w",
			role,
			core.ErrInvalidInput,
		)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.Role == role {
		return user, nil
	}
	user.Role = role

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	if err := s.repo.IncrementTokenVersion(ctx, id); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) GetMe(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("get me: %w", core.ErrUnauthorized)
	}

	return s.repo.GetByID(ctx, userID)
}

func (s *Service) UpdateMe(
	ctx context.Context,
	userID string,
	req UpdateUserRequest,
) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("update me: %w", core.ErrUnauthorized)
	}

	return s.UpdateUser(ctx, userID, req)
}

func (s *Service) DeleteMe(ctx context.Context, userID string) (*PurgeResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("delete me: %w", core.ErrUnauthorized)
	}

	return s.PurgeByID(ctx, userID)
}

func toUserInfo(u *User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:                   u.ID,
		Email:                u.Email,
		Name:                 u.Name,
		Role:                 u.Role,
		ActiveOrganizationID: u.ActiveOrganizationID,
		TokenVersion:         u.TokenVersion,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ auth.UserProvider = (*Service)(nil)
