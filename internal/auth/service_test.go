// AngelaMos | 2026
// service_test.go

package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carterperez-dev/templates/saas-backend/internal/auth"
	"github.com/carterperez-dev/templates/saas-backend/internal/config"
	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
)

func newJWTManager() *auth.JWTManager {
	dir, err := os.MkdirTemp("", "jwt")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(os.RemoveAll, dir)

	priv := filepath.Join(dir, "private.pem")
	pub := filepath.Join(dir, "public.pem")
	Expect(auth.GenerateKeyPair(priv, pub)).To(Succeed())

	m, err := auth.NewJWTManager(config.JWTConfig{
		PrivateKeyPath:     priv,
		PublicKeyPath:      pub,
		AccessTokenExpire:  15 * time.Minute,
		RefreshTokenExpire: 24 * time.Hour,
		Issuer:             "saas-test",
		Audience:           "saas-test",
	})
	Expect(err).NotTo(HaveOccurred())
	return m
}

func tokenFromLink(link string) string {
	u, err := url.Parse(link)
	Expect(err).NotTo(HaveOccurred())
	return u.Query().Get("token")
}

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		jwt      *auth.JWTManager
		users    *mockUsers
		orgs     *mockOrgs
		repo     *mockRepo
		tokens   *memoryTokenStore
		mailer   *captureMailer
		recorder *countingRecorder
		authCfg  config.AuthConfig
		svc      *auth.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		jwt = newJWTManager()
		users = &mockUsers{}
		orgs = &mockOrgs{}
		repo = &mockRepo{}
		tokens = newMemoryTokenStore()
		mailer = &captureMailer{}
		recorder = &countingRecorder{}
		authCfg = config.AuthConfig{
			MagicLinkURL: "http://localhost:3000/auth/verify",
			MagicLinkTTL: 15 * time.Minute,
		}
	})

	JustBeforeEach(func() {
		svc = auth.NewService(auth.Deps{
			Repo:    repo,
			JWT:     jwt,
			Users:   users,
			Orgs:    orgs,
			Tokens:  tokens,
			Mailer:  mailer,
			Config:  authCfg,
			Metrics: recorder,
		})
	})

	Describe("RequestMagicLink", func() {
		It("mails a link for the lower-cased address and hides it from the response", func() {
			resp, err := svc.RequestMagicLink(ctx, auth.MagicLinkRequest{Email: "  Invite@Example.COM "})

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Sent).To(BeTrue())
			Expect(resp.MagicLink).To(BeEmpty())
			Expect(mailer.sent).To(HaveLen(1))
			Expect(mailer.sent[0].To).To(Equal("invite@example.com"))
			Expect(mailer.sent[0].Body).To(ContainSubstring("http://localhost:3000/auth/verify?token="))
			Expect(tokens.links).To(HaveLen(1))
			for hash, email := range tokens.links {
				Expect(email).To(Equal("invite@example.com"))
				Expect(hash).To(HaveLen(64))
			}
			Expect(recorder.events["issued"]).To(Equal(1))
		})

		Context("when the link is exposed", func() {
			BeforeEach(func() {
				authCfg.ExposeMagicLink = true
			})

			It("returns the same link that was mailed", func() {
				resp, err := svc.RequestMagicLink(ctx, auth.MagicLinkRequest{Email: "a@example.com"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.MagicLink).NotTo(BeEmpty())
				Expect(mailer.sent[0].Body).To(ContainSubstring(resp.MagicLink))
			})
		})
	})

	Describe("VerifyMagicLink", func() {
		var token string

		BeforeEach(func() {
			authCfg.ExposeMagicLink = true
		})

		JustBeforeEach(func() {
			resp, err := svc.RequestMagicLink(ctx, auth.MagicLinkRequest{Email: "new@example.com"})
			Expect(err).NotTo(HaveOccurred())
			token = tokenFromLink(resp.MagicLink)
		})

		Context("for a first-time address", func() {
			var (
				created      *auth.UserInfo
				provisioned  []string
				storedTokens []*auth.RefreshToken
			)

			BeforeEach(func() {
				created = nil
				provisioned = nil
				storedTokens = nil
				orgID := "org-1"

				users.createFn = func(_ context.Context, email, name string) (*auth.UserInfo, error) {
					created = &auth.UserInfo{ID: "user-1", Email: email, Name: name, Role: "user"}
					return created, nil
				}
				users.getByIDFn = func(_ context.Context, id string) (*auth.UserInfo, error) {
					u := *created
					u.ActiveOrganizationID = &orgID
					return &u, nil
				}
				orgs.ensureDefaultFn = func(_ context.Context, userID, name string) error {
					provisioned = append(provisioned, userID+":"+name)
					return nil
				}
				repo.createFn = func(_ context.Context, t *auth.RefreshToken) error {
					storedTokens = append(storedTokens, t)
					return nil
				}
			})

			It("creates the user, provisions their organization and issues tokens", func() {
				resp, err := svc.VerifyMagicLink(ctx, token, "ua", "127.0.0.1")

				Expect(err).NotTo(HaveOccurred())
				Expect(created).NotTo(BeNil())
				Expect(created.Email).To(Equal("new@example.com"))
				Expect(created.Name).To(Equal("new"))
				Expect(provisioned).To(ConsistOf("user-1:new"))
				Expect(resp.User.ActiveOrganizationID).To(HaveValue(Equal("org-1")))
				Expect(resp.Tokens.AccessToken).NotTo(BeEmpty())
				Expect(resp.Tokens.RefreshToken).NotTo(BeEmpty())
				Expect(resp.Tokens.ExpiresIn).To(Equal(900))
				Expect(storedTokens).To(HaveLen(1))
				Expect(storedTokens[0].TokenHash).To(Equal(core.HashToken(resp.Tokens.RefreshToken)))
				Expect(recorder.events["verified"]).To(Equal(1))
			})

			It("only redeems a link once", func() {
				_, err := svc.VerifyMagicLink(ctx, token, "ua", "127.0.0.1")
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.VerifyMagicLink(ctx, token, "ua", "127.0.0.1")
				Expect(err).To(MatchError(core.ErrTokenInvalid))
				Expect(recorder.events["rejected"]).To(Equal(1))
			})
		})

		Context("for an existing user", func() {
			It("does not create another account", func() {
				existing := &auth.UserInfo{ID: "user-9", Email: "new@example.com", Name: "Newt", Role: "user"}
				users.getByEmailFn = func(_ context.Context, _ string) (*auth.UserInfo, error) {
					return existing, nil
				}
				users.getByIDFn = func(_ context.Context, _ string) (*auth.UserInfo, error) {
					return existing, nil
				}
				users.createFn = func(_ context.Context, _, _ string) (*auth.UserInfo, error) {
					Fail("Create should not be called for an existing user")
					return nil, nil
				}

				resp, err := svc.VerifyMagicLink(ctx, token, "ua", "127.0.0.1")

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.User.ID).To(Equal("user-9"))
			})
		})

		It("rejects an unknown token", func() {
			_, err := svc.VerifyMagicLink(ctx, "not-a-real-token-at-all", "ua", "127.0.0.1")
			Expect(err).To(MatchError(core.ErrTokenInvalid))
		})
	})

	Describe("VerifyAccessToken", func() {
		var (
			user   *auth.UserInfo
			access string
		)

		BeforeEach(func() {
			user = &auth.UserInfo{ID: "user-1", Email: "a@example.com", Role: "user", TokenVersion: 2}
			users.getByIDFn = func(_ context.Context, id string) (*auth.UserInfo, error) {
				if user == nil {
					return nil, core.ErrNotFound
				}
				return user, nil
			}

			var err error
			access, err = jwt.CreateAccessToken(auth.AccessTokenClaims{
				UserID:       "user-1",
				Role:         "user",
				TokenVersion: 2,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("accepts a current token", func() {
			claims, err := svc.VerifyAccessToken(ctx, access)

			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal("user-1"))
			Expect(claims.JTI).NotTo(BeEmpty())
			Expect(claims.ExpiresAt).To(BeTemporally("~", time.Now().Add(15*time.Minute), time.Minute))
		})

		It("rejects a token after logout", func() {
			claims, err := svc.VerifyAccessToken(ctx, access)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Logout(ctx, "", claims)).To(Succeed())
			Expect(tokens.blacklist).To(HaveKey(claims.JTI))

			_, err = svc.VerifyAccessToken(ctx, access)
			Expect(err).To(MatchError(core.ErrTokenRevoked))
		})

		It("rejects a token whose user was purged", func() {
			user = nil
			_, err := svc.VerifyAccessToken(ctx, access)
			Expect(err).To(MatchError(core.ErrTokenRevoked))
		})

		It("rejects a token minted before logout-all", func() {
			user.TokenVersion = 3
			_, err := svc.VerifyAccessToken(ctx, access)
			Expect(err).To(MatchError(core.ErrTokenRevoked))
		})
	})

	Describe("Refresh", func() {
		It("revokes the whole family when a used token is replayed", func() {
			var revokedFamily string
			repo.findByHashFn = func(_ context.Context, _ string) (*auth.RefreshToken, error) {
				return &auth.RefreshToken{
					ID:        "rt-1",
					UserID:    "user-1",
					FamilyID:  "fam-1",
					IsUsed:    true,
					ExpiresAt: time.Now().Add(time.Hour),
				}, nil
			}
			repo.revokeByFamilyFn = func(_ context.Context, familyID string) error {
				revokedFamily = familyID
				return nil
			}

			_, err := svc.Refresh(ctx, "replayed", "ua", "127.0.0.1")

			Expect(err).To(MatchError(auth.ErrTokenReuse))
			Expect(revokedFamily).To(Equal("fam-1"))
		})

		It("rotates a valid token and links the chain", func() {
			var usedID, replacedBy string
			repo.findByHashFn = func(_ context.Context, _ string) (*auth.RefreshToken, error) {
				return &auth.RefreshToken{
					ID:        "rt-1",
					UserID:    "user-1",
					FamilyID:  "fam-1",
					ExpiresAt: time.Now().Add(time.Hour),
				}, nil
			}
			repo.markAsUsedFn = func(_ context.Context, id, newID string) error {
				usedID, replacedBy = id, newID
				return nil
			}
			users.getByIDFn = func(_ context.Context, _ string) (*auth.UserInfo, error) {
				return &auth.UserInfo{ID: "user-1", Email: "a@example.com", Role: "user"}, nil
			}

			resp, err := svc.Refresh(ctx, "valid", "ua", "127.0.0.1")

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Tokens.RefreshToken).NotTo(Equal("valid"))
			Expect(usedID).To(Equal("rt-1"))
			Expect(replacedBy).NotTo(BeEmpty())
		})
	})

	Describe("Handler", func() {
		var router http.Handler

		JustBeforeEach(func() {
			h := auth.NewHandler(svc, nil)
			r := chi.NewRouter()
			h.RegisterRoutes(r, middleware.Authenticator(svc))
			router = r
		})

		It("answers 202 for a magic link request", func() {
			req := httptest.NewRequest(http.MethodPost, "/auth/magic-link",
				strings.NewReader(`{"email":"a@example.com"}`))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusAccepted))
			Expect(rec.Body.String()).To(ContainSubstring(`"sent":true`))
		})

		It("answers 400 for a malformed address", func() {
			req := httptest.NewRequest(http.MethodPost, "/auth/magic-link",
				strings.NewReader(`{"email":"nope"}`))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("answers 401 for an unknown link", func() {
			req := httptest.NewRequest(http.MethodGet,
				"/auth/magic-link/verify?token=0123456789abcdefghijklmnop", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("requires a bearer token for sessions", func() {
			req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
