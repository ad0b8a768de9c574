// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/templates/saas-backend/internal/config"
	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/mail"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
)

var ErrTokenReuse = errors.New("token reuse detected")

type UserInfo struct {
	ID                   string
	Email                string
	Name                 string
	Role                 string
	ActiveOrganizationID *string
	TokenVersion         int
}

type UserProvider interface {
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Create(ctx context.Context, email, name string) (*UserInfo, error)
	IncrementTokenVersion(ctx context.Context, userID string) error
}

// OrganizationProvisioner gives a user their personal organization on
// first sign in. It must be idempotent.
type OrganizationProvisioner interface {
	EnsureDefault(ctx context.Context, userID, name string) error
}

type Recorder interface {
	IncMagicLink(event string)
}

type nopRecorder struct{}

func (nopRecorder) IncMagicLink(string) {}

type Deps struct {
	Repo    Repository
	JWT     *JWTManager
	Users   UserProvider
	Orgs    OrganizationProvisioner
	Tokens  TokenStore
	Mailer  mail.Mailer
	Config  config.AuthConfig
	Metrics Recorder
}

type Service struct {
	repo    Repository
	jwt     *JWTManager
	users   UserProvider
	orgs    OrganizationProvisioner
	tokens  TokenStore
	mailer  mail.Mailer
	cfg     config.AuthConfig
	metrics Recorder
}

func NewService(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	return &Service{
		repo:    d.Repo,
		jwt:     d.JWT,
		users:   d.Users,
		orgs:    d.Orgs,
		tokens:  d.Tokens,
		mailer:  d.Mailer,
		cfg:     d.Config,
		metrics: d.Metrics,
	}
}

// RequestMagicLink stores a single-use token for email and mails the link.
// The returned link is only populated when the deployment exposes it.
func (s *Service) RequestMagicLink(
	ctx context.Context,
	req MagicLinkRequest,
) (*MagicLinkResponse, error) {
	email := normalizeEmail(req.Email)

	token, err := core.GenerateMagicLinkToken()
	if err != nil {
		return nil, fmt.Errorf("generate magic link: %w", err)
	}

	if err := s.tokens.SaveMagicLink(
		ctx,
		core.HashToken(token),
		email,
		s.cfg.MagicLinkTTL,
	); err != nil {
		return nil, err
	}

	link, err := buildMagicLink(s.cfg.MagicLinkURL, token)
	if err != nil {
		return nil, err
	}

	if err := s.mailer.Send(ctx, mail.MagicLinkMessage(email, link)); err != nil {
		return nil, fmt.Errorf("send magic link: %w", err)
	}

	s.metrics.IncMagicLink("issued")

	resp := &MagicLinkResponse{Sent: true}
	if s.cfg.ExposeMagicLink {
		resp.MagicLink = link
	}
	return resp, nil
}

// VerifyMagicLink redeems token, creating the user and their default
// organization on first use, and starts a session.
func (s *Service) VerifyMagicLink(
	ctx context.Context,
	token, userAgent, ipAddress string,
) (*AuthResponse, error) {
	email, err := s.tokens.ConsumeMagicLink(ctx, core.HashToken(token))
	if err != nil {
		if errors.Is(err, core.ErrTokenInvalid) {
			s.metrics.IncMagicLink("rejected")
		}
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, core.ErrNotFound):
		user, err = s.users.Create(ctx, email, nameFromEmail(email))
		if errors.Is(err, core.ErrDuplicateKey) {
			user, err = s.users.GetByEmail(ctx, email)
		}
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		slog.InfoContext(ctx, "user signed up", "user_id", user.ID)
	case err != nil:
		return nil, fmt.Errorf("get user: %w", err)
	}

	displayName := user.Name
	if displayName == "" {
		displayName = nameFromEmail(user.Email)
	}
	if err := s.orgs.EnsureDefault(ctx, user.ID, displayName); err != nil {
		return nil, fmt.Errorf("ensure default organization: %w", err)
	}

	// EnsureDefault may have set the active organization.
	if fresh, err := s.users.GetByID(ctx, user.ID); err == nil {
		user = fresh
	}

	s.metrics.IncMagicLink("verified")

	return s.createAuthResponse(ctx, user, userAgent, ipAddress, "", nil)
}

// VerifyAccessToken checks signature and claims, then rejects blacklisted
// token ids and tokens minted before the user's last revocation or purge.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := s.jwt.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.tokens.IsBlacklisted(ctx, claims.JTI)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}

	if err := s.ValidateTokenVersion(ctx, claims.UserID, claims.TokenVersion); err != nil {
		return nil, err
	}

	return claims, nil
}

func (s *Service) Refresh(
	ctx context.Context,
	refreshToken, userAgent, ipAddress string,
) (*AuthResponse, error) {
	tokenHash := core.HashToken(refreshToken)

	storedToken, err := s.repo.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	if err := storedToken.redeemable(time.Now()); err != nil {
		if errors.Is(err, ErrTokenReuse) {
			//nolint:errcheck // security revocation continues regardless
			_ = s.repo.RevokeByFamilyID(ctx, storedToken.FamilyID)
			slog.WarnContext(ctx, "refresh token reuse",
				"user_id", storedToken.UserID,
				"family_id", storedToken.FamilyID,
			)
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, storedToken.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return s.createAuthResponse(
		ctx,
		user,
		userAgent,
		ipAddress,
		storedToken.FamilyID,
		&storedToken.ID,
	)
}

// Logout revokes the refresh token and blacklists the access token that
// made the request until it would have expired anyway.
func (s *Service) Logout(
	ctx context.Context,
	refreshToken string,
	claims *middleware.AccessTokenClaims,
) error {
	if claims.JTI != "" {
		if err := s.tokens.Blacklist(ctx, claims.JTI, time.Until(claims.ExpiresAt)); err != nil {
			return err
		}
	}

	if refreshToken == "" {
		return nil
	}

	storedToken, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find token: %w", err)
	}

	if storedToken.UserID != claims.UserID {
		return fmt.Errorf("logout: %w", core.ErrForbidden)
	}

	if err := s.repo.RevokeByID(ctx, storedToken.ID); err != nil &&
		!errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.repo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}

	if err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		return fmt.Errorf("increment token version: %w", err)
	}

	return nil
}

func (s *Service) GetActiveSessions(
	ctx context.Context,
	userID string,
) ([]SessionInfo, error) {
	tokens, err := s.repo.GetActiveSessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionInfo{
			ID:        t.ID,
			UserAgent: t.UserAgent,
			IPAddress: t.IPAddress,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	return sessions, nil
}

func (s *Service) RevokeSession(
	ctx context.Context,
	userID, sessionID string,
) error {
	token, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}

	if token.UserID != userID {
		return fmt.Errorf("revoke session: %w", core.ErrForbidden)
	}

	if err := s.repo.RevokeByID(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

// ValidateTokenVersion fails for purged users as well as for tokens issued
// before a logout-all.
func (s *Service) ValidateTokenVersion(
	ctx context.Context,
	userID string,
	tokenVersion int,
) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("validate token version: %w", core.ErrTokenRevoked)
		}
		return fmt.Errorf("get user: %w", err)
	}

	if tokenVersion < user.TokenVersion {
		return fmt.Errorf("validate token version: %w", core.ErrTokenRevoked)
	}

	return nil
}

// PurgeExpiredSessions drops refresh tokens that expired more than a day ago.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

func (s *Service) createAuthResponse(
	ctx context.Context,
	user *UserInfo,
	userAgent, ipAddress, familyID string,
	oldTokenID *string,
) (*AuthResponse, error) {
	accessToken, err := s.jwt.CreateAccessToken(AccessTokenClaims{
		UserID:       user.ID,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	refreshData, err := s.jwt.CreateRefreshToken(user.ID, familyID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	newTokenID := uuid.New().String()

	if err := s.repo.Create(ctx, &RefreshToken{
		ID:        newTokenID,
		UserID:    user.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	if oldTokenID != nil {
		//nolint:errcheck // best-effort token chain tracking
		_ = s.repo.MarkAsUsed(ctx, *oldTokenID, newTokenID)
	}

	ttl := s.jwt.AccessTokenTTL()

	return &AuthResponse{
		User: UserResponse{
			ID:                   user.ID,
			Email:                user.Email,
			Name:                 user.Name,
			Role:                 user.Role,
			ActiveOrganizationID: user.ActiveOrganizationID,
		},
		Tokens: TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshData.Token,
			TokenType:    "Bearer",
			ExpiresIn:    int(ttl / time.Second),
			ExpiresAt:    time.Now().Add(ttl),
		},
	}, nil
}

func buildMagicLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse magic link url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
