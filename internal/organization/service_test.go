// AngelaMos | 2026
// service_test.go

package organization_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

var _ = Describe("Service", func() {
	var (
		ctx  context.Context
		repo *memRepo
		svc  *organization.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMemRepo()
		svc = organization.NewService(repo, &fakeTx{repo: repo})

		repo.addUser("owner", "owner@e2e.com")
		repo.addUser("admin", "admin@e2e.com")
		repo.addUser("member", "member@e2e.com")
	})

	join := func(orgID, userID, role string) string {
		id := userID + "@" + orgID
		_, err := repo.AddMember(ctx, &organization.Member{
			ID:             id,
			OrganizationID: orgID,
			UserID:         userID,
			Role:           role,
		})
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	Describe("EnsureDefault", func() {
		It("creates an owned organization and makes it active", func() {
			Expect(svc.EnsureDefault(ctx, "owner", "Owner")).To(Succeed())

			active, err := svc.Active(ctx, "owner")
			Expect(err).NotTo(HaveOccurred())
			Expect(active.Name).To(Equal("Owner's Organization"))
			Expect(active.Slug).To(HavePrefix("owner-"))
			Expect(active.Role).To(Equal(organization.RoleOwner))
			Expect(active.MemberCount).To(Equal(1))
			Expect(repo.active["owner"]).To(HaveValue(Equal(active.ID)))
		})

		It("is idempotent across repeated sign-ins", func() {
			Expect(svc.EnsureDefault(ctx, "owner", "Owner")).To(Succeed())
			Expect(svc.EnsureDefault(ctx, "owner", "Owner")).To(Succeed())

			Expect(repo.orgs).To(HaveLen(1))
		})

		It("locks the user row before looking at memberships", func() {
			Expect(svc.EnsureDefault(ctx, "owner", "Owner")).To(Succeed())

			Expect(repo.locked).To(Equal([]string{"owner"}))
		})

		It("creates nothing for a user that no longer exists", func() {
			err := svc.EnsureDefault(ctx, "ghost", "Ghost")

			Expect(err).To(MatchError(core.ErrNotFound))
			Expect(repo.orgs).To(BeEmpty())
		})

		It("only fills in the active organization for existing members", func() {
			Expect(svc.EnsureDefault(ctx, "owner", "Owner")).To(Succeed())
			ownerOrg := *repo.active["owner"]
			join(ownerOrg, "member", organization.RoleMember)

			Expect(svc.EnsureDefault(ctx, "member", "Member")).To(Succeed())

			Expect(repo.orgs).To(HaveLen(1))
			Expect(repo.active["member"]).To(HaveValue(Equal(ownerOrg)))
		})
	})

	Describe("switching organizations", func() {
		var ownerOrg, adminOrg string

		BeforeEach(func() {
			Expect(svc.EnsureDefault(ctx, "owner", "Owner")).To(Succeed())
			Expect(svc.EnsureDefault(ctx, "admin", "Admin")).To(Succeed())
			ownerOrg = *repo.active["owner"]
			adminOrg = *repo.active["admin"]
			join(ownerOrg, "admin", organization.RoleAdmin)
		})

		It("changes the active organization and role", func() {
			active, err := svc.Switch(ctx, "admin", ownerOrg)

			Expect(err).NotTo(HaveOccurred())
			Expect(active.ID).To(Equal(ownerOrg))
			Expect(active.Role).To(Equal(organization.RoleAdmin))
			Expect(organization.CanInvite(active.Role)).To(BeTrue())
			Expect(active.MemberCount).To(Equal(2))
		})

		It("refuses organizations the caller does not belong to", func() {
			_, err := svc.Switch(ctx, "owner", adminOrg)
			Expect(err).To(MatchError(organization.ErrNotMember))
		})

		It("falls back to the first membership when the active one vanished", func() {
			gone := "deleted-org"
			repo.active["admin"] = &gone

			active, err := svc.Active(ctx, "admin")

			Expect(err).NotTo(HaveOccurred())
			Expect(active.ID).To(Equal(adminOrg))
		})

		It("lists every membership and flags the active one", func() {
			orgs, err := svc.List(ctx, "admin")

			Expect(err).NotTo(HaveOccurred())
			Expect(orgs).To(HaveLen(2))
			Expect(orgs[0].ID).To(Equal(adminOrg))
			Expect(orgs[0].Active).To(BeTrue())
			Expect(orgs[1].Role).To(Equal(organization.RoleAdmin))
		})
	})

	Describe("RemoveMember", func() {
		var ownerOrg, ownerMember, memberMember string

		BeforeEach(func() {
			Expect(svc.EnsureDefault(ctx, "owner", "Owner")).To(Succeed())
			ownerOrg = *repo.active["owner"]
			for id, m := range repo.members {
				if m.UserID == "owner" {
					ownerMember = id
				}
			}
			join(ownerOrg, "admin", organization.RoleAdmin)
			memberMember = join(ownerOrg, "member", organization.RoleMember)
			repo.active["admin"] = &ownerOrg
			repo.active["member"] = &ownerOrg
		})

		It("lets an admin remove a member", func() {
			Expect(svc.RemoveMember(ctx, "admin", memberMember)).To(Succeed())

			n, _ := svc.MemberCount(ctx, ownerOrg)
			Expect(n).To(Equal(2))
		})

		It("does not let a member remove anyone", func() {
			err := svc.RemoveMember(ctx, "member", ownerMember)
			Expect(err).To(MatchError(core.ErrForbidden))
		})

		It("does not let an admin remove an owner", func() {
			err := svc.RemoveMember(ctx, "admin", ownerMember)
			Expect(err).To(MatchError(core.ErrForbidden))
		})

		It("keeps the last owner", func() {
			err := svc.RemoveMember(ctx, "owner", ownerMember)
			Expect(err).To(MatchError(organization.ErrLastOwner))
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		as := func(userID string) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					ctx := middleware.WithClaims(r.Context(), &middleware.AccessTokenClaims{UserID: userID, Role: "user"})
					next.ServeHTTP(w, r.WithContext(ctx))
				})
			}
		}

		BeforeEach(func() {
			Expect(svc.EnsureDefault(ctx, "owner", "Owner")).To(Succeed())
			Expect(svc.EnsureDefault(ctx, "member", "Member")).To(Succeed())
			router = chi.NewRouter()
		})

		It("returns the active organization with its member count", func() {
			organization.NewHandler(svc).RegisterRoutes(router, as("owner"))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/organization", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"member_count":1`))
		})

		It("answers 403 when switching into a foreign organization", func() {
			organization.NewHandler(svc).RegisterRoutes(router, as("owner"))
			body := `{"organization_id":"` + *repo.active["member"] + `"}`

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/organizations/active", strings.NewReader(body)))

			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("answers 400 for a malformed organization id", func() {
			organization.NewHandler(svc).RegisterRoutes(router, as("owner"))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/organizations/active",
				strings.NewReader(`{"organization_id":"nope"}`)))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
