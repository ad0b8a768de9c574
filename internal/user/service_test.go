// AngelaMos | 2026
// service_test.go

package user_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
	"github.com/carterperez-dev/templates/saas-backend/internal/user"
)

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		repo     *mockRepo
		tx       *fakeTx
		recorder *countingRecorder
		svc      *user.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &mockRepo{}
		tx = &fakeTx{repo: repo}
		recorder = &countingRecorder{}
		svc = user.NewService(repo, tx, recorder)
	})

	Describe("Create", func() {
		It("stores a lower-cased address with the user role", func() {
			var stored *user.User
			repo.createFn = func(_ context.Context, u *user.User) error {
				stored = u
				return nil
			}

			info, err := svc.Create(ctx, " Invite1@Example.com ", " Invite One ")

			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Email).To(Equal("invite1@example.com"))
			Expect(stored.Name).To(Equal("Invite One"))
			Expect(stored.Role).To(Equal(user.RoleUser))
			Expect(info.ID).To(Equal(stored.ID))
		})

		It("surfaces duplicate addresses", func() {
			repo.createFn = func(_ context.Context, _ *user.User) error {
				return core.ErrDuplicateKey
			}

			_, err := svc.Create(ctx, "a@example.com", "a")
			Expect(err).To(MatchError(core.ErrDuplicateKey))
		})
	})

	Describe("Purge", func() {
		Context("when the user owns organizations alone", func() {
			var customer string

			BeforeEach(func() {
				customer = "cus_123"
				repo.lockByEmailFn = func(_ context.Context, email string) (*user.User, error) {
					Expect(email).To(Equal("invite@example.com"))
					return &user.User{
						ID:               "u1",
						Email:            email,
						Role:             user.RoleUser,
						StripeCustomerID: &customer,
					}, nil
				}
				repo.deleteSubsFn = func(_ context.Context, id string, customerID *string) (int64, error) {
					Expect(id).To(Equal("u1"))
					Expect(customerID).To(HaveValue(Equal("cus_123")))
					return 1, nil
				}
				repo.deleteOrgsFn = func(_ context.Context, _ string) (int64, error) {
					return 2, nil
				}
			})

			It("deletes subscriptions, then organizations, then the user, in one transaction", func() {
				result, err := svc.Purge(ctx, "INVITE@example.com")

				Expect(err).NotTo(HaveOccurred())
				Expect(repo.calls).To(Equal([]string{
					"LockByEmail",
					"DeleteSubscriptionsFor",
					"DeleteSoleOwnedOrganizations",
					"DeleteNonAdmin",
				}))
				Expect(tx.committed).To(Equal(1))
				Expect(result.SubscriptionsDeleted).To(BeEquivalentTo(1))
				Expect(result.OrganizationsDeleted).To(BeEquivalentTo(2))
				Expect(result.DeletedCount()).To(BeEquivalentTo(2))
				Expect(recorder.results["deleted"]).To(Equal(1))
			})
		})

		It("refuses global admins without touching anything", func() {
			repo.lockByEmailFn = func(_ context.Context, email string) (*user.User, error) {
				return &user.User{ID: "admin", Email: email, Role: user.RoleAdmin}, nil
			}

			_, err := svc.Purge(ctx, "admin@example.com")

			Expect(err).To(MatchError(core.ErrForbidden))
			Expect(repo.calls).To(Equal([]string{"LockByEmail"}))
			Expect(tx.rolled).To(Equal(1))
			Expect(recorder.results["refused"]).To(Equal(1))
		})

		It("reports an absent user as not found", func() {
			_, err := svc.Purge(ctx, "ghost@example.com")

			Expect(err).To(MatchError(core.ErrNotFound))
			Expect(recorder.results["absent"]).To(Equal(1))
		})

		It("treats a row that vanished mid-purge as not found", func() {
			repo.lockByEmailFn = func(_ context.Context, email string) (*user.User, error) {
				return &user.User{ID: "u1", Email: email, Role: user.RoleUser}, nil
			}
			repo.deleteNonAdminFn = func(_ context.Context, _ string) (int64, error) {
				return 0, nil
			}

			_, err := svc.Purge(ctx, "gone@example.com")

			Expect(err).To(MatchError(core.ErrNotFound))
			Expect(tx.rolled).To(Equal(1))
		})

		It("rolls back and wraps storage errors", func() {
			boom := errors.New("boom")
			repo.lockByEmailFn = func(_ context.Context, email string) (*user.User, error) {
				return &user.User{ID: "u1", Email: email, Role: user.RoleUser}, nil
			}
			repo.deleteOrgsFn = func(_ context.Context, _ string) (int64, error) {
				return 0, boom
			}

			_, err := svc.Purge(ctx, "a@example.com")

			Expect(err).To(MatchError(boom))
			Expect(repo.calls).NotTo(ContainElement("DeleteNonAdmin"))
			Expect(tx.rolled).To(Equal(1))
			Expect(recorder.results["error"]).To(Equal(1))
		})
	})

	Describe("UpdateUserRole", func() {
		It("bumps the token version when the role changes", func() {
			repo.getByIDFn = func(_ context.Context, id string) (*user.User, error) {
				return &user.User{ID: id, Role: user.RoleUser}, nil
			}

			u, err := svc.UpdateUserRole(ctx, "u1", user.RoleAdmin)

			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(user.RoleAdmin))
			Expect(repo.calls).To(Equal([]string{"Update", "IncrementTokenVersion"}))
		})

		It("rejects unknown roles", func() {
			_, err := svc.UpdateUserRole(ctx, "u1", "owner")
			Expect(err).To(MatchError(core.ErrInvalidInput))
		})
	})

	Describe("StripeCustomerID", func() {
		It("is empty for a user without a customer", func() {
			repo.getByIDFn = func(_ context.Context, id string) (*user.User, error) {
				return &user.User{ID: id}, nil
			}

			id, err := svc.StripeCustomerID(ctx, "u1")

			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(BeEmpty())
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			router = chi.NewRouter()
			withUser := func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					ctx := middleware.WithClaims(r.Context(), &middleware.AccessTokenClaims{
						UserID: "admin-1",
						Role:   user.RoleAdmin,
					})
					next.ServeHTTP(w, r.WithContext(ctx))
				})
			}
			user.NewHandler(svc).RegisterRoutes(router, withUser)
			user.NewHandler(svc).RegisterAdminRoutes(router, withUser, middleware.RequireAdmin)

			repo.getByIDFn = func(_ context.Context, id string) (*user.User, error) {
				return &user.User{ID: id, Email: id + "@example.com", Role: user.RoleAdmin}, nil
			}
			repo.lockByEmailFn = func(_ context.Context, email string) (*user.User, error) {
				return &user.User{ID: "admin-1", Email: email, Role: user.RoleAdmin}, nil
			}
		})

		It("refuses to delete an admin through DELETE /users/me", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/users/me", nil))

			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("returns 404 for an unknown user id", func() {
			repo.getByIDFn = nil

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/users/missing", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})
